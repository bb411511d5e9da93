package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/classroom/internal/adapters/device"
	"github.com/samirrijal/classroom/internal/adapters/geocoder"
	"github.com/samirrijal/classroom/internal/adapters/http"
	natsadapter "github.com/samirrijal/classroom/internal/adapters/nats"
	"github.com/samirrijal/classroom/internal/adapters/postgres"
	temporaladapter "github.com/samirrijal/classroom/internal/adapters/temporal"
	"github.com/samirrijal/classroom/internal/adapters/valkey"
	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/eligibility"
	"github.com/samirrijal/classroom/internal/core/ports"
	"github.com/samirrijal/classroom/internal/core/usecases"
	"github.com/samirrijal/classroom/internal/pkg/config"
	"github.com/samirrijal/classroom/internal/pkg/logging"
	"github.com/samirrijal/classroom/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("classroom-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go db.ReportPoolStats(ctx, 15*time.Second)

	deps := &http.Dependencies{DB: db}

	// Cache is optional: without it windows and addresses are looked up every time.
	var cache ports.CacheService
	if vc, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer vc.Close()
		cache, deps.Cache = vc, vc
	}

	var publisher ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
		deps.NATS = pub.Conn()
	}

	var dispatcher ports.GradeDispatcher
	if cfg.Temporal.Enabled {
		tc, err := temporaladapter.Dial(cfg.Temporal.HostPort, cfg.Temporal.Namespace)
		if err != nil {
			log.Fatalf("temporal: %v", err)
		}
		defer tc.Close()
		dispatcher = temporaladapter.NewDispatcher(tc, cfg.Temporal.TaskQueue)
	}

	loc, err := cfg.Eligibility.TimeLocation()
	if err != nil {
		log.Fatalf("eligibility timezone: %v", err)
	}
	checkCfg := usecases.CheckConfig{
		Policy: eligibility.Policy{
			AllowedRadiusMeters:     cfg.Eligibility.AllowedRadiusMeters,
			AccuracyThresholdMeters: cfg.Eligibility.AccuracyThresholdMeters,
		},
		Acquire: domain.AcquireOptions{
			HighAccuracy: cfg.Location.HighAccuracy,
			Timeout:      cfg.Location.Timeout(),
			MaxAge:       cfg.Location.MaxAge(),
		},
		Location:   loc,
		SessionTTL: cfg.Checks.SessionTTL,
	}

	groupRepo := postgres.NewGroupRepo(db)
	taskRepo := postgres.NewTaskRepo(db)
	answerRepo := postgres.NewAnswerRepo(db)

	clock := ports.SystemClock{}
	deps.Groups = usecases.NewGroupService(groupRepo, clock)
	deps.Tasks = usecases.NewTaskService(taskRepo, groupRepo, cache, clock)
	deps.Checks = usecases.NewCheckService(deps.Tasks, answerRepo, publisher,
		func() ports.ReportingAcquirer { return device.NewMailbox(clock) },
		checkCfg, clock)
	deps.Answers = usecases.NewAnswerService(answerRepo, taskRepo, deps.Checks, publisher, dispatcher, clock)
	deps.Addresses = usecases.NewAddressService(geocoder.NewPhoton(cfg.Geocoder.BaseURL, cfg.Geocoder.Timeout), cache)

	go deps.Checks.Run(ctx)

	// Devices may also report fixes over NATS (classroom.fix.<session>).
	if deps.NATS != nil {
		sub := natsadapter.NewSubscriberWithConn(deps.NATS)
		if err := sub.SubscribeFixes(ctx, deps.Checks.HandleFix); err != nil {
			slog.Warn("fix subscription failed", "error", err)
		}
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024,
		AppName:      "Classroom API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000, http://localhost:5173",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, " + http.HeaderUserID,
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	deps.Checks.Shutdown(shutdownCtx)

	slog.Info("server stopped")
}
