package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/classroom/internal/adapters/device"
	"github.com/samirrijal/classroom/internal/adapters/gpsd"
	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/eligibility"
	"github.com/samirrijal/classroom/internal/core/gate"
	"github.com/samirrijal/classroom/internal/core/ports"
	"github.com/samirrijal/classroom/internal/pkg/config"
	"github.com/samirrijal/classroom/internal/pkg/geospatial"
	"github.com/samirrijal/classroom/internal/pkg/telemetry"
)

// parsePoint parses "lat,lon" and, when allowExtra, "lat,lon,accuracy".
func parsePoint(s string, allowExtra bool) (domain.GeoPoint, *float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 || len(parts) > 3 || (len(parts) == 3 && !allowExtra) {
		return domain.GeoPoint{}, nil, fmt.Errorf("%w: expected lat,lon got %q", domain.ErrValidation, s)
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.GeoPoint{}, nil, fmt.Errorf("%w: %q is not a number", domain.ErrValidation, p)
		}
		vals[i] = v
	}
	pt := domain.GeoPoint{Lat: vals[0], Lon: vals[1]}
	if err := pt.Validate(); err != nil {
		return domain.GeoPoint{}, nil, err
	}
	if len(vals) == 3 {
		return pt, &vals[2], nil
	}
	return pt, nil, nil
}

type checkFlags struct {
	kind      string
	target    string
	radius    float64
	accuracy  float64
	date      string
	today     string
	fix       string
	errorCode string
	gpsdAddr  string
	useGPSD   bool
	jsonOut   bool
	trace     bool
}

func parseCheckFlags(cfg *config.Config, args []string, stderr io.Writer) (*checkFlags, error) {
	f := &checkFlags{}
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.kind, "kind", string(domain.TaskKindInternship), "task kind: homework or internship")
	fs.StringVar(&f.target, "target", "", "internship location as lat,lon (empty: none configured)")
	fs.Float64Var(&f.radius, "radius", cfg.Eligibility.AllowedRadiusMeters, "allowed radius in meters")
	fs.Float64Var(&f.accuracy, "accuracy-threshold", cfg.Eligibility.AccuracyThresholdMeters, "accuracy above which a distant fix is inconclusive")
	fs.StringVar(&f.date, "date", "", "scheduled date YYYY-MM-DD (empty: any day)")
	fs.StringVar(&f.today, "today", "", "evaluate as if today were YYYY-MM-DD")
	fs.StringVar(&f.fix, "fix", "", "device fix as lat,lon[,accuracy]")
	fs.StringVar(&f.errorCode, "error", "", "simulate a geolocation error: 1, 2, 3 or unsupported")
	fs.BoolVar(&f.useGPSD, "gpsd", false, "acquire the fix from gpsd")
	fs.StringVar(&f.gpsdAddr, "gpsd-addr", cfg.GPSD.Addr, "gpsd address")
	fs.BoolVar(&f.jsonOut, "json", false, "print the gate snapshot as JSON")
	fs.BoolVar(&f.trace, "trace", false, "print spans to stderr")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *checkFlags) window() (domain.TaskWindow, error) {
	w := domain.TaskWindow{Kind: domain.TaskKind(f.kind), AllowedRadiusMeters: f.radius}
	if !w.Kind.Valid() {
		return w, fmt.Errorf("%w: unknown kind %q", domain.ErrValidation, f.kind)
	}
	if f.target != "" {
		p, _, err := parsePoint(f.target, false)
		if err != nil {
			return w, fmt.Errorf("--target: %w", err)
		}
		w.Target = &p
	}
	if f.date != "" {
		d, err := domain.ParseDate(f.date)
		if err != nil {
			return w, fmt.Errorf("--date: %w", err)
		}
		w.ScheduledDate = &d
	}
	return w, nil
}

func (f *checkFlags) acquirer(clock ports.Clock) (ports.LocationAcquirer, error) {
	switch {
	case f.useGPSD:
		return gpsd.New(f.gpsdAddr, clock), nil
	case f.errorCode != "":
		code, err := domain.ParseLocationErrorCode(f.errorCode)
		if err != nil {
			return nil, err
		}
		return device.Static{Err: domain.NewLocationError(code, "simulated"), Clock: clock}, nil
	case f.fix != "":
		p, acc, err := parsePoint(f.fix, true)
		if err != nil {
			return nil, fmt.Errorf("--fix: %w", err)
		}
		s := domain.PositionSample{Point: p}
		if acc != nil {
			s.AccuracyMeters = *acc
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("--fix: %w", err)
		}
		return device.Static{Sample: &s, Clock: clock}, nil
	}
	// No source: the platform has no geolocation.
	return device.Static{Clock: clock}, nil
}

// todayClock pins the civil date used by the gate to noon of d in loc.
type todayClock struct {
	d   domain.Date
	loc *time.Location
}

func (c todayClock) Now() time.Time {
	return time.Date(c.d.Year, c.d.Month, c.d.Day, 12, 0, 0, 0, c.loc)
}

func runCheck(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) (int, error) {
	f, err := parseCheckFlags(cfg, args, stderr)
	if err != nil {
		return 0, err
	}
	defer withTracing(f.trace, stderr)()

	w, err := f.window()
	if err != nil {
		return 0, err
	}

	loc, err := cfg.Eligibility.TimeLocation()
	if err != nil {
		return 0, err
	}
	var clock ports.Clock = ports.SystemClock{}
	if f.today != "" {
		d, err := domain.ParseDate(f.today)
		if err != nil {
			return 0, fmt.Errorf("--today: %w", err)
		}
		clock = todayClock{d: d, loc: loc}
	}
	acq, err := f.acquirer(clock)
	if err != nil {
		return 0, err
	}

	ctx, span := otel.Tracer("classroom/eligibility").Start(ctx, "eligibility.check")
	defer span.End()

	g := gate.New(w, acq,
		gate.WithPolicy(eligibility.Policy{AllowedRadiusMeters: f.radius, AccuracyThresholdMeters: f.accuracy}),
		gate.WithClock(clock),
		gate.WithLocation(loc),
		gate.WithAcquireOptions(domain.AcquireOptions{
			HighAccuracy: cfg.Location.HighAccuracy,
			Timeout:      cfg.Location.Timeout(),
			MaxAge:       cfg.Location.MaxAge(),
		}),
	)
	defer g.Close()
	g.Check(ctx)

	snap := g.Snapshot()
	span.SetAttributes(attribute.String(telemetry.AttrGateState, string(snap.State)))

	if f.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return 0, err
		}
	} else {
		printSnapshot(stdout, w, snap)
	}

	if snap.State == gate.StateBlocked {
		return exitBlocked, nil
	}
	return 0, nil
}

func printSnapshot(out io.Writer, w domain.TaskWindow, s gate.Snapshot) {
	fmt.Fprintf(out, "kind:     %s\n", w.Kind)
	fmt.Fprintf(out, "state:    %s\n", s.State)
	if s.Verdict != nil {
		fmt.Fprintf(out, "reason:   %s\n", s.Verdict.Reason)
		if s.Verdict.DistanceMeters != nil {
			fmt.Fprintf(out, "distance: %.0f m\n", *s.Verdict.DistanceMeters)
		}
	}
	if s.Sample != nil {
		fmt.Fprintf(out, "fix:      %s (±%.0f m)\n", s.Sample.Point, s.Sample.AccuracyMeters)
	}
	if s.LocationError != "" {
		fmt.Fprintf(out, "error:    %s\n", s.LocationError)
	}
	if s.Message != "" {
		fmt.Fprintf(out, "message:  %s\n", s.Message)
	}
	if s.Warning != "" {
		fmt.Fprintf(out, "warning:  %s\n", s.Warning)
	}
	fmt.Fprintf(out, "submit:   %t\n", s.Controls.Submit)
}

func runDistance(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("distance", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("expected two points, got %d", fs.NArg())
	}
	a, _, err := parsePoint(fs.Arg(0), false)
	if err != nil {
		return err
	}
	b, _, err := parsePoint(fs.Arg(1), false)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%.1f\n", geospatial.Distance(a, b))
	return nil
}
