// Package gpsd acquires positions from a local gpsd daemon over its JSON
// socket protocol. It serves hosts that carry their own GNSS receiver.
package gpsd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"time"

	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/ports"
)

// DefaultAddr is gpsd's well-known port on localhost.
const DefaultAddr = "localhost:2947"

const watchCommand = `?WATCH={"enable":true,"json":true};` + "\n"

// Modes reported in TPV messages.
const (
	modeNoFix = 1
	mode2D    = 2
	mode3D    = 3
)

// tpv is the subset of a gpsd TPV report we read.
type tpv struct {
	Class string    `json:"class"`
	Mode  int       `json:"mode"`
	Time  time.Time `json:"time"`
	Lat   *float64  `json:"lat"`
	Lon   *float64  `json:"lon"`
	Epx   float64   `json:"epx"`
	Epy   float64   `json:"epy"`
	Eph   float64   `json:"eph"`
}

func (t tpv) sample() domain.PositionSample {
	acc := math.Max(t.Epx, t.Epy)
	if acc == 0 {
		acc = t.Eph
	}
	return domain.PositionSample{
		Point:          domain.GeoPoint{Lat: *t.Lat, Lon: *t.Lon},
		AccuracyMeters: acc,
		CapturedAt:     t.Time,
	}
}

// Acquirer implements ports.LocationAcquirer against gpsd.
type Acquirer struct {
	addr  string
	clock ports.Clock
	dial  func(ctx context.Context, network, addr string) (net.Conn, error)
}

// New creates an acquirer for the gpsd listening at addr.
func New(addr string, clock ports.Clock) *Acquirer {
	if addr == "" {
		addr = DefaultAddr
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}
	var d net.Dialer
	return &Acquirer{addr: addr, clock: clock, dial: d.DialContext}
}

// Acquire opens a watch, waits for the first usable fix and closes the
// connection. With HighAccuracy it holds out for a 3D fix until the
// deadline and falls back to the best 2D fix seen.
func (a *Acquirer) Acquire(ctx context.Context, opts domain.AcquireOptions) (domain.PositionSample, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	startedAt := a.clock.Now()

	conn, err := a.dial(ctx, "tcp", a.addr)
	if err != nil {
		if ctx.Err() != nil {
			return domain.PositionSample{}, deadlineError(ctx, false)
		}
		return domain.PositionSample{}, domain.NewLocationError(domain.LocationUnsupported,
			fmt.Sprintf("gpsd unreachable at %s: %v", a.addr, err))
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetDeadline(time.Now())
		case <-stop:
		}
	}()

	if _, err := conn.Write([]byte(watchCommand)); err != nil {
		return domain.PositionSample{}, domain.NewLocationError(domain.LocationPositionUnavailable, err.Error())
	}

	oldest := startedAt.Add(-opts.MaxAge - time.Second)
	var best *domain.PositionSample
	sawNoFix := false

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var msg tpv
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil || msg.Class != "TPV" {
			continue
		}
		if msg.Mode <= modeNoFix || msg.Lat == nil || msg.Lon == nil {
			sawNoFix = true
			continue
		}
		if msg.Time.IsZero() {
			msg.Time = a.clock.Now()
		}
		if msg.Time.Before(oldest) {
			continue
		}
		s := msg.sample()
		if msg.Mode >= mode3D || !opts.HighAccuracy {
			return s, nil
		}
		if msg.Mode == mode2D && (best == nil || s.AccuracyMeters < best.AccuracyMeters) {
			best = &s
		}
	}

	if best != nil {
		return *best, nil
	}
	err = scanner.Err()
	if ctx.Err() != nil || isTimeout(err) {
		return domain.PositionSample{}, deadlineError(ctx, sawNoFix)
	}
	detail := "gpsd closed the connection"
	if err != nil {
		detail = err.Error()
	}
	return domain.PositionSample{}, domain.NewLocationError(domain.LocationPositionUnavailable, detail)
}

func deadlineError(ctx context.Context, sawNoFix bool) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if sawNoFix {
		return domain.NewLocationError(domain.LocationPositionUnavailable, "receiver has no fix")
	}
	return domain.NewLocationError(domain.LocationTimeout, "no fix before deadline")
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
