// Command eligibility evaluates the internship submission rules from the
// command line, against a given fix or the host's gpsd, and can forward a
// gpsd fix to an open check session over NATS.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samirrijal/classroom/internal/pkg/config"
	"github.com/samirrijal/classroom/internal/pkg/logging"
	"github.com/samirrijal/classroom/internal/pkg/telemetry"
)

const usage = `usage: eligibility <command> [flags]

commands:
  check     evaluate a task window against a fix (--fix) or gpsd (--gpsd)
  distance  print the distance in meters between two lat,lon points
  report    acquire a fix from gpsd and send it to a check session over NATS
`

// exitBlocked is returned by check when submission would be blocked.
const exitBlocked = 2

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 1
	}

	cfg, err := config.Load("classroom-eligibility")
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	slog.SetDefault(logging.New(stderr, cfg.Log.Level, "text"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cmdErr error
	code := 0
	switch args[0] {
	case "check":
		code, cmdErr = runCheck(ctx, cfg, args[1:], stdout, stderr)
	case "distance":
		cmdErr = runDistance(args[1:], stdout, stderr)
	case "report":
		cmdErr = runReport(ctx, cfg, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 1
	}

	if cmdErr != nil {
		if !errors.Is(cmdErr, flag.ErrHelp) {
			fmt.Fprintf(stderr, "eligibility %s: %v\n", args[0], cmdErr)
		}
		return 1
	}
	return code
}

// withTracing installs a stdout span exporter when enabled.
func withTracing(enabled bool, w io.Writer) func() {
	if !enabled {
		return func() {}
	}
	shutdown, err := telemetry.InitStdoutTracer("classroom-eligibility", w)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		return func() {}
	}
	return shutdown
}
