package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Valkey      ValkeyConfig      `mapstructure:"valkey"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Geocoder    GeocoderConfig    `mapstructure:"geocoder"`
	GPSD        GPSDConfig        `mapstructure:"gpsd"`
	Eligibility EligibilityConfig `mapstructure:"eligibility"`
	Location    LocationConfig    `mapstructure:"location"`
	Checks      ChecksConfig      `mapstructure:"checks"`
	Temporal    TemporalConfig    `mapstructure:"temporal"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type GeocoderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GPSDConfig struct {
	Addr string `mapstructure:"addr"`
}

// EligibilityConfig tunes the eligibility rules.
type EligibilityConfig struct {
	AllowedRadiusMeters     float64 `mapstructure:"allowed_radius_meters"`
	AccuracyThresholdMeters float64 `mapstructure:"accuracy_threshold_meters"`
	// Timezone in which "today" is compared with a task's scheduled date.
	Timezone string `mapstructure:"timezone"`
}

// TimeLocation loads the configured timezone.
func (e EligibilityConfig) TimeLocation() (*time.Location, error) {
	return time.LoadLocation(e.Timezone)
}

// LocationConfig holds the position request parameters sent to devices.
type LocationConfig struct {
	HighAccuracy bool `mapstructure:"high_accuracy"`
	TimeoutMs    int  `mapstructure:"timeout_ms"`
	MaxAgeMs     int  `mapstructure:"max_age_ms"`
}

func (l LocationConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutMs) * time.Millisecond
}

func (l LocationConfig) MaxAge() time.Duration {
	return time.Duration(l.MaxAgeMs) * time.Millisecond
}

type ChecksConfig struct {
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// Environment variables: CLASSROOM_DATABASE_HOST → database.host
	v.SetEnvPrefix("CLASSROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "classroom")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "classroom")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("geocoder.base_url", "https://photon.komoot.io")
	v.SetDefault("geocoder.timeout", 5*time.Second)
	v.SetDefault("gpsd.addr", "localhost:2947")
	v.SetDefault("eligibility.allowed_radius_meters", 500.0)
	v.SetDefault("eligibility.accuracy_threshold_meters", 200.0)
	v.SetDefault("eligibility.timezone", "UTC")
	v.SetDefault("location.high_accuracy", true)
	v.SetDefault("location.timeout_ms", 15000)
	v.SetDefault("location.max_age_ms", 0)
	v.SetDefault("checks.session_ttl", 30*time.Minute)
	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "grading-queue")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Eligibility.AllowedRadiusMeters <= 0 {
		errs = append(errs, "eligibility.allowed_radius_meters must be positive")
	}
	if c.Eligibility.AccuracyThresholdMeters <= 0 {
		errs = append(errs, "eligibility.accuracy_threshold_meters must be positive")
	}
	if _, err := c.Eligibility.TimeLocation(); err != nil {
		errs = append(errs, fmt.Sprintf("eligibility.timezone: %v", err))
	}
	if c.Location.TimeoutMs <= 0 {
		errs = append(errs, "location.timeout_ms must be positive")
	}
	if c.Location.MaxAgeMs < 0 {
		errs = append(errs, "location.max_age_ms must not be negative")
	}
	if c.Checks.SessionTTL <= 0 {
		errs = append(errs, "checks.session_ttl must be positive")
	}
	if c.Temporal.Enabled && c.Temporal.HostPort == "" {
		errs = append(errs, "temporal.host_port is required when temporal is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
