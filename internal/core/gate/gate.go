// Package gate implements the submission gate: a small state machine that
// enables the answer form of an internship task only once the student's
// device position and the calendar date satisfy the task window.
//
//	Idle -> Checking -> {Eligible, Blocked, Inconclusive}
//
// A new check only starts from a settled state, so at most one acquisition
// is in flight per gate. Close cancels the in-flight acquisition; results
// arriving afterwards are dropped.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/eligibility"
	"github.com/samirrijal/classroom/internal/core/ports"
)

// State of the gate.
type State string

const (
	StateIdle         State = "idle"
	StateChecking     State = "checking"
	StateEligible     State = "eligible"
	StateBlocked      State = "blocked"
	StateInconclusive State = "inconclusive"
)

// timeoutGrace bounds an acquirer that ignores its own timeout.
const timeoutGrace = 2 * time.Second

// Controls tells the form which inputs are usable.
type Controls struct {
	Comment bool `json:"comment"`
	Attach  bool `json:"attach"`
	Submit  bool `json:"submit"`
}

// Snapshot is an immutable view of the gate.
type Snapshot struct {
	State         State                      `json:"state"`
	Busy          bool                       `json:"busy"`
	Closed        bool                       `json:"closed"`
	Controls      Controls                   `json:"controls"`
	Verdict       *domain.EligibilityVerdict `json:"verdict,omitempty"`
	LocationError string                     `json:"location_error,omitempty"`
	Message       string                     `json:"message,omitempty"`
	Warning       string                     `json:"warning,omitempty"`
	Sample        *domain.PositionSample     `json:"sample,omitempty"`
	Request       *domain.AcquireOptions     `json:"request,omitempty"`
	Attempts      int                        `json:"attempts"`
	UpdatedAt     time.Time                  `json:"updated_at"`
	// Seq increases with every transition; consumers drop lower values.
	Seq uint64 `json:"seq"`
}

// Settled reports whether no acquisition is in flight.
func (s Snapshot) Settled() bool { return s.State != StateChecking }

// Option configures a Gate.
type Option func(*Gate)

// WithPolicy overrides the eligibility policy.
func WithPolicy(p eligibility.Policy) Option { return func(g *Gate) { g.policy = p } }

// WithClock overrides the clock used for "today".
func WithClock(c ports.Clock) Option { return func(g *Gate) { g.clock = c } }

// WithLocation sets the timezone in which the scheduled date is compared.
func WithLocation(loc *time.Location) Option { return func(g *Gate) { g.loc = loc } }

// WithAcquireOptions sets the position request parameters.
func WithAcquireOptions(o domain.AcquireOptions) Option { return func(g *Gate) { g.opts = o } }

// WithObserver registers a callback invoked after every transition.
// Observers are called one at a time, in transition order, and never see a
// snapshot older than one already delivered. They must not call Check or
// Start.
func WithObserver(fn func(Snapshot)) Option {
	return func(g *Gate) { g.observers = append(g.observers, fn) }
}

// DefaultAcquireOptions asks for a fresh high-accuracy fix within 15 s.
func DefaultAcquireOptions() domain.AcquireOptions {
	return domain.AcquireOptions{HighAccuracy: true, Timeout: 15 * time.Second, MaxAge: 0}
}

// Gate is owned by a single form instance; it is safe for concurrent use.
type Gate struct {
	window    domain.TaskWindow
	acquirer  ports.LocationAcquirer
	policy    eligibility.Policy
	clock     ports.Clock
	loc       *time.Location
	opts      domain.AcquireOptions
	observers []func(Snapshot)

	mu       sync.Mutex
	state    State
	verdict  *domain.EligibilityVerdict
	locErr   *domain.LocationError
	sample   *domain.PositionSample
	attempts int
	updated  time.Time
	cycle    uint64
	cancel   context.CancelFunc
	settled  chan struct{}
	closed   bool
	seq      uint64

	notifyMu  sync.Mutex
	delivered uint64
}

// New creates a gate for window. Homework windows start Eligible and never check.
func New(window domain.TaskWindow, acquirer ports.LocationAcquirer, opts ...Option) *Gate {
	g := &Gate{
		window:   window,
		acquirer: acquirer,
		policy:   eligibility.DefaultPolicy(),
		clock:    ports.SystemClock{},
		loc:      time.UTC,
		opts:     DefaultAcquireOptions(),
		state:    StateIdle,
	}
	for _, o := range opts {
		o(g)
	}
	g.updated = g.clock.Now()
	g.settled = make(chan struct{})
	close(g.settled)

	if g.bypassed() {
		v := eligibility.Evaluate(g.policy, g.window, nil, g.today())
		g.verdict = &v
		g.state = StateEligible
	}
	return g
}

// Window returns the task window the gate enforces.
func (g *Gate) Window() domain.TaskWindow { return g.window }

func (g *Gate) bypassed() bool { return g.window.Kind != domain.TaskKindInternship }

func (g *Gate) today() domain.Date { return domain.DateOf(g.clock.Now(), g.loc) }

// Check runs one acquisition cycle and blocks until it resolves. It returns
// false without doing anything when a cycle is already in flight, the gate
// is closed, or the task is not gated.
func (g *Gate) Check(ctx context.Context) bool {
	acqCtx, cycle, ok := g.begin(ctx)
	if !ok {
		return false
	}
	g.run(acqCtx, cycle)
	return true
}

// Start is Check without waiting: the acquisition runs in its own goroutine.
func (g *Gate) Start(ctx context.Context) bool {
	acqCtx, cycle, ok := g.begin(ctx)
	if !ok {
		return false
	}
	go g.run(acqCtx, cycle)
	return true
}

func (g *Gate) begin(ctx context.Context) (context.Context, uint64, bool) {
	g.mu.Lock()
	if g.closed || g.state == StateChecking || g.bypassed() {
		g.mu.Unlock()
		return nil, 0, false
	}

	var acqCtx context.Context
	var cancel context.CancelFunc
	if g.opts.Timeout > 0 {
		acqCtx, cancel = context.WithTimeout(ctx, g.opts.Timeout+timeoutGrace)
	} else {
		acqCtx, cancel = context.WithCancel(ctx)
	}
	g.cancel = cancel
	g.cycle++
	g.attempts++
	g.state = StateChecking
	g.settled = make(chan struct{})
	g.updated = g.clock.Now()
	g.seq++
	cycle := g.cycle
	snap := g.snapshotLocked()
	g.mu.Unlock()

	g.notify(snap)
	return acqCtx, cycle, true
}

func (g *Gate) run(ctx context.Context, cycle uint64) {
	sample, err := g.acquirer.Acquire(ctx, g.opts)
	g.resolve(cycle, sample, err)
}

func (g *Gate) resolve(cycle uint64, sample domain.PositionSample, err error) {
	g.mu.Lock()
	if g.closed || cycle != g.cycle || g.state != StateChecking {
		g.mu.Unlock()
		return
	}
	g.cancel()
	g.cancel = nil

	today := g.today()
	if err != nil {
		g.locErr = toLocationError(err)
		g.sample = nil
		v := eligibility.Evaluate(g.policy, g.window, nil, today)
		g.verdict = &v
		if v.Allowed {
			g.state = StateInconclusive
		} else {
			g.state = StateBlocked
		}
	} else {
		s := sample
		g.locErr = nil
		g.sample = &s
		v := eligibility.Evaluate(g.policy, g.window, &s, today)
		g.verdict = &v
		g.state = stateFor(v)
	}
	g.updated = g.clock.Now()
	g.seq++
	close(g.settled)
	snap := g.snapshotLocked()
	g.mu.Unlock()

	g.notify(snap)
}

func stateFor(v domain.EligibilityVerdict) State {
	switch {
	case !v.Allowed:
		return StateBlocked
	case v.Reason == domain.ReasonNoLocationConfigured:
		return StateInconclusive
	default:
		return StateEligible
	}
}

func toLocationError(err error) *domain.LocationError {
	if le, ok := domain.AsLocationError(err); ok {
		return le
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewLocationError(domain.LocationTimeout, "acquisition deadline exceeded")
	}
	return domain.NewLocationError(domain.LocationPositionUnavailable, err.Error())
}

// Wait blocks until the current cycle settles or ctx ends.
func (g *Gate) Wait(ctx context.Context) (Snapshot, error) {
	g.mu.Lock()
	ch := g.settled
	g.mu.Unlock()

	select {
	case <-ch:
		return g.Snapshot(), nil
	case <-ctx.Done():
		return g.Snapshot(), ctx.Err()
	}
}

// Close disposes the gate and cancels any in-flight acquisition. Idempotent.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	if g.state == StateChecking {
		close(g.settled)
	}
}

// Allow returns nil when the form may be submitted.
func (g *Gate) Allow() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case StateEligible, StateInconclusive:
		return nil
	case StateChecking:
		return fmt.Errorf("%w: location check in progress", domain.ErrSubmissionBlocked)
	case StateIdle:
		return fmt.Errorf("%w: location not checked yet", domain.ErrSubmissionBlocked)
	}
	if g.locErr != nil {
		return fmt.Errorf("%w: %s", domain.ErrSubmissionBlocked, g.locErr.Code)
	}
	if g.verdict != nil {
		return fmt.Errorf("%w: %s", domain.ErrSubmissionBlocked, g.verdict.Reason)
	}
	return domain.ErrSubmissionBlocked
}

// Sample returns the fix of the last settled cycle, if any.
func (g *Gate) Sample() *domain.PositionSample {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sample == nil {
		return nil
	}
	s := *g.sample
	return &s
}

// Snapshot returns the current view of the gate.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Gate) snapshotLocked() Snapshot {
	s := Snapshot{
		State:     g.state,
		Busy:      g.state == StateChecking,
		Closed:    g.closed,
		Attempts:  g.attempts,
		UpdatedAt: g.updated,
		Seq:       g.seq,
	}
	if g.verdict != nil {
		v := *g.verdict
		s.Verdict = &v
		s.Message = eligibility.Message(v, g.window)
	}
	if g.sample != nil {
		sample := *g.sample
		s.Sample = &sample
	}
	if g.locErr != nil {
		s.LocationError = g.locErr.Code.String()
		s.Message = g.locErr.Error()
	}

	switch g.state {
	case StateEligible:
		s.Controls = Controls{Comment: true, Attach: true, Submit: true}
	case StateInconclusive:
		s.Controls = Controls{Comment: true, Attach: true, Submit: true}
		s.Warning = "the internship location could not be verified"
		if g.window.Target == nil {
			s.Warning = "no internship location is configured; your position was not verified"
		}
	case StateChecking:
		opts := g.opts
		s.Request = &opts
		s.Message = "determining your location"
	}
	return s
}

func (g *Gate) notify(s Snapshot) {
	if len(g.observers) == 0 {
		return
	}
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()
	if s.Seq <= g.delivered {
		return
	}
	g.delivered = s.Seq
	for _, fn := range g.observers {
		fn(s)
	}
}
