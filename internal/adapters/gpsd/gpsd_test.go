package gpsd

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/samirrijal/classroom/internal/core/domain"
)

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

var now = time.Date(2026, time.October, 18, 10, 0, 0, 0, time.UTC)

// fakeDaemon accepts one connection, waits for WATCH and writes lines.
func fakeDaemon(t *testing.T, lines []string, hold bool) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		cmd, _ := bufio.NewReader(conn).ReadString('\n')
		if !strings.HasPrefix(cmd, "?WATCH=") {
			return
		}
		for _, l := range lines {
			if _, err := conn.Write([]byte(l + "\n")); err != nil {
				return
			}
		}
		if hold {
			time.Sleep(2 * time.Second)
		}
	}()
	return ln.Addr().String()
}

func TestAcquire_3DFix(t *testing.T) {
	addr := fakeDaemon(t, []string{
		`{"class":"VERSION","release":"3.25"}`,
		`{"class":"TPV","mode":1}`,
		`{"class":"TPV","mode":3,"time":"2026-10-18T10:00:01Z","lat":43.263,"lon":-2.935,"epx":4.5,"epy":6.0}`,
	}, false)

	s, err := New(addr, stubClock{t: now}).Acquire(context.Background(), domain.AcquireOptions{HighAccuracy: true, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Point.Lat != 43.263 || s.Point.Lon != -2.935 {
		t.Errorf("unexpected point %+v", s.Point)
	}
	if s.AccuracyMeters != 6.0 {
		t.Errorf("expected accuracy max(epx, epy)=6, got %f", s.AccuracyMeters)
	}
}

func TestAcquire_HighAccuracyFallsBackTo2D(t *testing.T) {
	addr := fakeDaemon(t, []string{
		`{"class":"TPV","mode":2,"time":"2026-10-18T10:00:01Z","lat":43.1,"lon":-2.1,"eph":40}`,
		`{"class":"TPV","mode":2,"time":"2026-10-18T10:00:02Z","lat":43.2,"lon":-2.2,"eph":25}`,
	}, true)

	s, err := New(addr, stubClock{t: now}).Acquire(context.Background(), domain.AcquireOptions{HighAccuracy: true, Timeout: 150 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.AccuracyMeters != 25 {
		t.Errorf("expected the most accurate 2D fix, got %+v", s)
	}
}

func TestAcquire_LowAccuracyAccepts2D(t *testing.T) {
	addr := fakeDaemon(t, []string{
		`{"class":"TPV","mode":2,"time":"2026-10-18T10:00:01Z","lat":43.1,"lon":-2.1,"eph":40}`,
	}, true)

	s, err := New(addr, stubClock{t: now}).Acquire(context.Background(), domain.AcquireOptions{Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Point.Lat != 43.1 {
		t.Errorf("unexpected sample %+v", s)
	}
}

func TestAcquire_NoFixIsUnavailable(t *testing.T) {
	addr := fakeDaemon(t, []string{`{"class":"TPV","mode":1}`}, true)

	_, err := New(addr, stubClock{t: now}).Acquire(context.Background(), domain.AcquireOptions{Timeout: 100 * time.Millisecond})
	le, ok := domain.AsLocationError(err)
	if !ok || le.Code != domain.LocationPositionUnavailable {
		t.Fatalf("expected POSITION_UNAVAILABLE, got %v", err)
	}
}

func TestAcquire_SilentDaemonTimesOut(t *testing.T) {
	addr := fakeDaemon(t, nil, true)

	_, err := New(addr, stubClock{t: now}).Acquire(context.Background(), domain.AcquireOptions{Timeout: 100 * time.Millisecond})
	le, ok := domain.AsLocationError(err)
	if !ok || le.Code != domain.LocationTimeout {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
}

func TestAcquire_StaleFixIgnored(t *testing.T) {
	addr := fakeDaemon(t, []string{
		`{"class":"TPV","mode":3,"time":"2026-10-18T09:00:00Z","lat":1,"lon":1,"epx":3,"epy":3}`,
	}, true)

	_, err := New(addr, stubClock{t: now}).Acquire(context.Background(), domain.AcquireOptions{Timeout: 100 * time.Millisecond})
	if le, ok := domain.AsLocationError(err); !ok || le.Code != domain.LocationTimeout {
		t.Fatalf("expected the hour-old fix to be ignored, got %v", err)
	}
}

func TestAcquire_NoDaemonIsUnsupported(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = New(addr, stubClock{t: now}).Acquire(context.Background(), domain.AcquireOptions{Timeout: time.Second})
	le, ok := domain.AsLocationError(err)
	if !ok || le.Code != domain.LocationUnsupported {
		t.Fatalf("expected UNSUPPORTED, got %v", err)
	}
}
