// Package device implements location acquirers whose fixes come from the
// student's own browser or phone rather than from the host.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/ports"
)

var (
	// ErrNoPendingRequest is returned when a report arrives while nobody is waiting.
	ErrNoPendingRequest = errors.New("no position request pending")
	// ErrStaleFix is returned for fixes older than the request allows.
	ErrStaleFix = errors.New("position fix is too old")
	// ErrBusy is returned when Acquire is called while another call waits.
	ErrBusy = errors.New("position request already pending")
)

// clockSkew tolerates device clocks running slightly behind the server.
const clockSkew = 2 * time.Second

type reply struct {
	sample domain.PositionSample
	err    *domain.LocationError
}

type request struct {
	opts      domain.AcquireOptions
	startedAt time.Time
	reply     chan reply
}

// Mailbox is a ports.ReportingAcquirer: Acquire parks until the device
// answers the request through Deliver or Fail. Nothing is kept between
// calls; a report with no request waiting is rejected.
type Mailbox struct {
	clock ports.Clock

	mu      sync.Mutex
	pending *request
}

// NewMailbox creates an empty mailbox.
func NewMailbox(clock ports.Clock) *Mailbox {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Mailbox{clock: clock}
}

// Acquire waits for a report, opts.Timeout, or ctx, whichever comes first.
func (m *Mailbox) Acquire(ctx context.Context, opts domain.AcquireOptions) (domain.PositionSample, error) {
	req := &request{opts: opts, startedAt: m.clock.Now(), reply: make(chan reply, 1)}

	m.mu.Lock()
	if m.pending != nil {
		m.mu.Unlock()
		return domain.PositionSample{}, ErrBusy
	}
	m.pending = req
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.pending == req {
			m.pending = nil
		}
		m.mu.Unlock()
	}()

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		t := time.NewTimer(opts.Timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case r := <-req.reply:
		if r.err != nil {
			return domain.PositionSample{}, r.err
		}
		return r.sample, nil
	case <-timeout:
		return domain.PositionSample{}, domain.NewLocationError(domain.LocationTimeout,
			fmt.Sprintf("no fix within %s", opts.Timeout))
	case <-ctx.Done():
		return domain.PositionSample{}, ctx.Err()
	}
}

// Pending returns the options of the waiting request, if any.
func (m *Mailbox) Pending() (domain.AcquireOptions, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return domain.AcquireOptions{}, false
	}
	return m.pending.opts, true
}

// Deliver answers the waiting request with a fix. A zero CapturedAt is
// stamped with the server time.
func (m *Mailbox) Deliver(sample domain.PositionSample) error {
	if err := sample.Validate(); err != nil {
		return err
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = m.clock.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	req := m.pending
	if req == nil {
		return ErrNoPendingRequest
	}
	oldest := req.startedAt.Add(-req.opts.MaxAge - clockSkew)
	if sample.CapturedAt.Before(oldest) {
		return fmt.Errorf("%w: captured %s, request started %s",
			ErrStaleFix, sample.CapturedAt.Format(time.RFC3339), req.startedAt.Format(time.RFC3339))
	}
	m.pending = nil
	req.reply <- reply{sample: sample}
	return nil
}

// Fail answers the waiting request with a platform error.
func (m *Mailbox) Fail(err *domain.LocationError) error {
	if err == nil {
		return errors.New("nil location error")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req := m.pending
	if req == nil {
		return ErrNoPendingRequest
	}
	m.pending = nil
	req.reply <- reply{err: err}
	return nil
}
