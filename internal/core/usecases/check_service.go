package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/eligibility"
	"github.com/samirrijal/classroom/internal/core/gate"
	"github.com/samirrijal/classroom/internal/core/ports"
	"github.com/samirrijal/classroom/internal/pkg/logging"
	"github.com/samirrijal/classroom/internal/pkg/metrics"
	"github.com/samirrijal/classroom/internal/pkg/telemetry"
)

var tracer = otel.Tracer("github.com/samirrijal/classroom/internal/core/usecases")

// settleWait bounds how long a device report waits for the gate to settle
// so the response can carry the resolved state.
const settleWait = time.Second

// WindowSource resolves a task and its submission window.
type WindowSource interface {
	Window(ctx context.Context, taskID string) (*domain.Task, domain.TaskWindow, error)
}

// CheckConfig tunes the check sessions.
type CheckConfig struct {
	Policy     eligibility.Policy
	Acquire    domain.AcquireOptions
	Location   *time.Location
	SessionTTL time.Duration
}

// DefaultCheckConfig returns the default policy, a fresh 15 s high-accuracy
// request, UTC dates and a 30 minute idle TTL.
func DefaultCheckConfig() CheckConfig {
	return CheckConfig{
		Policy:     eligibility.DefaultPolicy(),
		Acquire:    gate.DefaultAcquireOptions(),
		Location:   time.UTC,
		SessionTTL: 30 * time.Minute,
	}
}

// CheckView is what clients see of a session.
type CheckView struct {
	SessionID string            `json:"session_id"`
	TaskID    string            `json:"task_id"`
	StudentID string            `json:"student_id"`
	Window    domain.TaskWindow `json:"window"`
	Gate      gate.Snapshot     `json:"gate"`
	// PreviouslyVerified is the location stored with an earlier answer.
	// It is shown to the student and never feeds the verdict.
	PreviouslyVerified *domain.GeoPoint `json:"previously_verified,omitempty"`
	OpenedAt           time.Time        `json:"opened_at"`
}

type checkSession struct {
	id        string
	taskID    string
	studentID string
	window    domain.TaskWindow
	previous  *domain.GeoPoint
	openedAt  time.Time
	gate      *gate.Gate
	device    ports.ReportingAcquirer

	mu            sync.Mutex
	lastSeen      time.Time
	checkingSince time.Time
}

func (cs *checkSession) touch(now time.Time) {
	cs.mu.Lock()
	cs.lastSeen = now
	cs.mu.Unlock()
}

func (cs *checkSession) idleSince() time.Time {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.lastSeen
}

func (cs *checkSession) view() CheckView {
	return CheckView{
		SessionID:          cs.id,
		TaskID:             cs.taskID,
		StudentID:          cs.studentID,
		Window:             cs.window,
		Gate:               cs.gate.Snapshot(),
		PreviouslyVerified: cs.previous,
		OpenedAt:           cs.openedAt,
	}
}

// CheckService owns the submission gates of open answer forms. Each
// session pairs one gate with the device channel its fixes arrive on.
type CheckService struct {
	windows     WindowSource
	answers     ports.AnswerRepository
	publisher   ports.EventPublisher
	newAcquirer func() ports.ReportingAcquirer
	cfg         CheckConfig
	clock       ports.Clock

	root   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*checkSession
	byPair   map[string]string
}

// NewCheckService creates a new CheckService. newAcquirer is called once
// per session; publisher may be nil.
func NewCheckService(
	windows WindowSource,
	answers ports.AnswerRepository,
	publisher ports.EventPublisher,
	newAcquirer func() ports.ReportingAcquirer,
	cfg CheckConfig,
	clock ports.Clock,
) *CheckService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	root, cancel := context.WithCancel(context.Background())
	return &CheckService{
		windows:     windows,
		answers:     answers,
		publisher:   publisher,
		newAcquirer: newAcquirer,
		cfg:         cfg,
		clock:       clock,
		root:        root,
		cancel:      cancel,
		sessions:    make(map[string]*checkSession),
		byPair:      make(map[string]string),
	}
}

func pairKey(taskID, studentID string) string { return taskID + "/" + studentID }

// Open starts a session for the student's answer form. Internship tasks
// begin checking immediately; a session already open for the same
// student and task is closed first.
func (s *CheckService) Open(ctx context.Context, taskID, studentID string) (*CheckView, error) {
	ctx, span := tracer.Start(ctx, "CheckService.Open")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrTaskID, taskID))

	if studentID == "" {
		return nil, fieldError("student_id", "this field is required")
	}
	task, window, err := s.windows.Window(ctx, taskID)
	if err != nil {
		return nil, err
	}

	previous := s.previousLocation(ctx, task.ID, studentID)

	now := s.clock.Now()
	cs := &checkSession{
		id:        uuid.NewString(),
		taskID:    task.ID,
		studentID: studentID,
		window:    window,
		previous:  previous,
		openedAt:  now,
		lastSeen:  now,
		device:    s.newAcquirer(),
	}
	cs.gate = gate.New(window, cs.device,
		gate.WithPolicy(s.cfg.Policy),
		gate.WithClock(s.clock),
		gate.WithLocation(s.cfg.Location),
		gate.WithAcquireOptions(s.cfg.Acquire),
		gate.WithObserver(func(snap gate.Snapshot) { s.onTransition(cs, snap) }),
	)

	s.mu.Lock()
	key := pairKey(cs.taskID, studentID)
	var stale *checkSession
	if oldID, ok := s.byPair[key]; ok {
		stale = s.sessions[oldID]
		delete(s.sessions, oldID)
	}
	s.sessions[cs.id] = cs
	s.byPair[key] = cs.id
	s.mu.Unlock()

	if stale != nil {
		stale.gate.Close()
	} else {
		metrics.ActiveCheckSessions.Inc()
	}

	cs.gate.Start(s.root)
	span.SetAttributes(attribute.String(telemetry.AttrSessionID, cs.id), attribute.String(telemetry.AttrGateState, string(cs.gate.Snapshot().State)))

	logging.FromContext(ctx).Info("check session opened",
		"session", cs.id, "task", cs.taskID, "kind", window.Kind)

	v := cs.view()
	return &v, nil
}

func (s *CheckService) previousLocation(ctx context.Context, taskID, studentID string) *domain.GeoPoint {
	if s.answers == nil {
		return nil
	}
	a, err := s.answers.GetByTaskAndStudent(ctx, taskID, studentID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logging.FromContext(ctx).Warn("lookup previous answer", "task", taskID, "error", err)
		}
		return nil
	}
	return a.Location
}

func (s *CheckService) session(id string) (*checkSession, error) {
	s.mu.Lock()
	cs, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	cs.touch(s.clock.Now())
	return cs, nil
}

// Get returns the current view of a session.
func (s *CheckService) Get(_ context.Context, id string) (*CheckView, error) {
	cs, err := s.session(id)
	if err != nil {
		return nil, err
	}
	v := cs.view()
	return &v, nil
}

// Retry starts a new check from a settled state. While a check is in
// flight it does nothing and reports started=false.
func (s *CheckService) Retry(ctx context.Context, id string) (*CheckView, bool, error) {
	_, span := tracer.Start(ctx, "CheckService.Retry")
	defer span.End()

	cs, err := s.session(id)
	if err != nil {
		return nil, false, err
	}
	started := cs.gate.Start(s.root)
	span.SetAttributes(attribute.Bool(telemetry.AttrCheckStarted, started))
	v := cs.view()
	return &v, started, nil
}

// Pending returns the position request the device should answer, if any.
func (s *CheckService) Pending(_ context.Context, id string) (domain.AcquireOptions, bool, error) {
	cs, err := s.session(id)
	if err != nil {
		return domain.AcquireOptions{}, false, err
	}
	opts, ok := cs.device.Pending()
	return opts, ok, nil
}

// ReportFix hands a device fix to the waiting acquisition and returns the
// view once the gate settles (or after a short wait).
func (s *CheckService) ReportFix(ctx context.Context, id string, sample domain.PositionSample) (*CheckView, error) {
	ctx, span := tracer.Start(ctx, "CheckService.ReportFix")
	defer span.End()

	cs, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if err := cs.device.Deliver(sample); err != nil {
		return nil, err
	}
	return s.settledView(ctx, cs), nil
}

// ReportError hands a platform error to the waiting acquisition.
func (s *CheckService) ReportError(ctx context.Context, id string, locErr *domain.LocationError) (*CheckView, error) {
	ctx, span := tracer.Start(ctx, "CheckService.ReportError")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrLocationError, locErr.Code.String()))

	cs, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if err := cs.device.Fail(locErr); err != nil {
		return nil, err
	}
	return s.settledView(ctx, cs), nil
}

func (s *CheckService) settledView(ctx context.Context, cs *checkSession) *CheckView {
	wctx, cancel := context.WithTimeout(ctx, settleWait)
	defer cancel()
	_, _ = cs.gate.Wait(wctx)
	v := cs.view()
	return &v
}

// HandleFix routes a broker-delivered device report to its session.
func (s *CheckService) HandleFix(ctx context.Context, report ports.FixReport) error {
	cs, err := s.session(report.SessionID)
	if err != nil {
		return err
	}
	switch {
	case report.Error != nil:
		return cs.device.Fail(report.Error)
	case report.Sample != nil:
		return cs.device.Deliver(*report.Sample)
	default:
		return fieldError("sample", "a report needs a sample or an error")
	}
}

// Close disposes a session. Acquisitions still in flight are cancelled and
// their results dropped.
func (s *CheckService) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	cs, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
		if s.byPair[pairKey(cs.taskID, cs.studentID)] == id {
			delete(s.byPair, pairKey(cs.taskID, cs.studentID))
		}
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	cs.gate.Close()
	metrics.ActiveCheckSessions.Dec()
	logging.FromContext(ctx).Info("check session closed", "session", id)
	return nil
}

// Authorize confirms that the session's gate lets the student submit an
// answer for taskID and returns the fix it verified, if any.
func (s *CheckService) Authorize(_ context.Context, sessionID, taskID, studentID string) (*domain.PositionSample, error) {
	cs, err := s.session(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSubmissionBlocked, err)
	}
	if cs.taskID != taskID || cs.studentID != studentID {
		return nil, fmt.Errorf("%w: session belongs to another form", domain.ErrSubmissionBlocked)
	}
	if err := cs.gate.Allow(); err != nil {
		return nil, err
	}
	return cs.gate.Sample(), nil
}

// Evaluate runs the eligibility rules once without a session. A nil today
// means the current date in the configured timezone.
func (s *CheckService) Evaluate(window domain.TaskWindow, sample *domain.PositionSample, today *domain.Date) domain.EligibilityVerdict {
	d := domain.DateOf(s.clock.Now(), s.cfg.Location)
	if today != nil {
		d = *today
	}
	return eligibility.Evaluate(s.cfg.Policy, window, sample, d)
}

// Policy returns the configured eligibility policy.
func (s *CheckService) Policy() eligibility.Policy { return s.cfg.Policy }

// Run sweeps idle sessions until ctx ends.
func (s *CheckService) Run(ctx context.Context) {
	every := s.cfg.SessionTTL / 4
	if every <= 0 {
		return
	}
	if every > time.Minute {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(ctx); n > 0 {
				logging.FromContext(ctx).Info("expired check sessions", "count", n)
			}
		}
	}
}

// Sweep closes sessions idle for longer than the TTL and returns how many.
func (s *CheckService) Sweep(ctx context.Context) int {
	if s.cfg.SessionTTL <= 0 {
		return 0
	}
	cutoff := s.clock.Now().Add(-s.cfg.SessionTTL)

	s.mu.Lock()
	var expired []string
	for id, cs := range s.sessions {
		if cs.idleSince().Before(cutoff) {
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	n := 0
	for _, id := range expired {
		if s.Close(ctx, id) == nil {
			n++
		}
	}
	return n
}

// Shutdown closes every session and cancels outstanding acquisitions.
func (s *CheckService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		_ = s.Close(ctx, id)
	}
	s.cancel()
}

func (s *CheckService) onTransition(cs *checkSession, snap gate.Snapshot) {
	metrics.GateTransitions.WithLabelValues(string(snap.State)).Inc()

	cs.mu.Lock()
	if snap.State == gate.StateChecking {
		cs.checkingSince = snap.UpdatedAt
	} else if !cs.checkingSince.IsZero() {
		metrics.AcquisitionDuration.Observe(snap.UpdatedAt.Sub(cs.checkingSince).Seconds())
		cs.checkingSince = time.Time{}
	}
	cs.mu.Unlock()

	if snap.Verdict != nil && snap.State != gate.StateChecking {
		metrics.Verdicts.WithLabelValues(string(snap.Verdict.Reason)).Inc()
	}
	if snap.LocationError != "" {
		metrics.LocationErrors.WithLabelValues(snap.LocationError).Inc()
	}

	if s.publisher == nil {
		return
	}
	ctx := s.root
	if data, err := json.Marshal(snap); err == nil {
		if err := s.publisher.PublishGateState(ctx, cs.id, data); err != nil {
			logging.FromContext(ctx).Warn("publish gate state", "session", cs.id, "error", err)
		}
	}
	if snap.Settled() && snap.Verdict != nil && snap.Attempts > 0 {
		ev := &domain.CheckEvent{
			SessionID: cs.id,
			TaskID:    cs.taskID,
			StudentID: cs.studentID,
			Verdict:   *snap.Verdict,
			Error:     snap.LocationError,
			Time:      snap.UpdatedAt,
		}
		if err := s.publisher.PublishCheck(ctx, ev); err != nil {
			logging.FromContext(ctx).Warn("publish check event", "session", cs.id, "error", err)
		}
	}
}
