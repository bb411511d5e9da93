package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/samirrijal/classroom/internal/adapters/gpsd"
	natsadapter "github.com/samirrijal/classroom/internal/adapters/nats"
	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/ports"
	"github.com/samirrijal/classroom/internal/pkg/config"
)

// runReport answers a check session's pending request with a gpsd fix, or
// with the platform error gpsd produced.
func runReport(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	session := fs.String("session", "", "check session ID (required)")
	addr := fs.String("gpsd-addr", cfg.GPSD.Addr, "gpsd address")
	natsURL := fs.String("nats", cfg.NATS.URL, "NATS URL")
	trace := fs.Bool("trace", false, "print spans to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *session == "" {
		return fmt.Errorf("--session is required")
	}
	defer withTracing(*trace, stderr)()

	pub, err := natsadapter.NewPublisher(*natsURL)
	if err != nil {
		return err
	}
	defer pub.Close()

	opts := domain.AcquireOptions{
		HighAccuracy: cfg.Location.HighAccuracy,
		Timeout:      cfg.Location.Timeout(),
		MaxAge:       cfg.Location.MaxAge(),
	}
	sample, err := gpsd.New(*addr, ports.SystemClock{}).Acquire(ctx, opts)

	var msg natsadapter.FixMessage
	if locErr, ok := domain.AsLocationError(err); ok {
		msg = natsadapter.FixMessageFromError(locErr)
		fmt.Fprintf(stdout, "reporting %s to session %s\n", locErr.Code, *session)
	} else if err != nil {
		return err
	} else {
		msg = natsadapter.FixMessageFromSample(sample)
		fmt.Fprintf(stdout, "reporting %s (±%.0f m) to session %s\n", sample.Point, sample.AccuracyMeters, *session)
	}
	if err := pub.PublishFix(ctx, *session, msg); err != nil {
		return err
	}
	return pub.Conn().Flush()
}
