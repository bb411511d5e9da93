package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samirrijal/classroom/internal/adapters/device"
	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/gate"
	"github.com/samirrijal/classroom/internal/core/ports"
	"github.com/samirrijal/classroom/internal/core/usecases"
	"github.com/samirrijal/classroom/internal/pkg/geospatial"
)

type stubWindows struct {
	task   *domain.Task
	window domain.TaskWindow
}

func (s stubWindows) Window(ctx context.Context, taskID string) (*domain.Task, domain.TaskWindow, error) {
	if s.task == nil || s.task.ID != taskID {
		return nil, domain.TaskWindow{}, domain.ErrNotFound
	}
	return s.task, s.window, nil
}

var site = domain.GeoPoint{Lat: 43.263, Lon: -2.935}

func internshipWindows() stubWindows {
	task := internshipTask()
	return stubWindows{task: task, window: domain.TaskWindow{
		Kind:                domain.TaskKindInternship,
		ScheduledDate:       task.ScheduledDate,
		Target:              &site,
		AllowedRadiusMeters: 500,
	}}
}

func newCheckService(t *testing.T, windows usecases.WindowSource, answers *mockAnswerRepo, pub *mockPublisher, clock *fakeClock) *usecases.CheckService {
	t.Helper()
	cfg := usecases.DefaultCheckConfig()
	cfg.Acquire.Timeout = 5 * time.Second
	var publisher ports.EventPublisher
	if pub != nil {
		publisher = pub
	}
	svc := usecases.NewCheckService(windows, answers, publisher,
		func() ports.ReportingAcquirer { return device.NewMailbox(clock) }, cfg, clock)
	t.Cleanup(func() { svc.Shutdown(context.Background()) })
	return svc
}

// waitPending polls until the session's acquisition is waiting for the device.
func waitPending(t *testing.T, svc *usecases.CheckService, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok, err := svc.Pending(context.Background(), id)
		return err == nil && ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCheckService_OpenHomeworkIsEligible(t *testing.T) {
	windows := stubWindows{
		task:   &domain.Task{ID: "hw", Kind: domain.TaskKindHomework},
		window: domain.TaskWindow{Kind: domain.TaskKindHomework},
	}
	svc := newCheckService(t, windows, &mockAnswerRepo{}, nil, newFakeClock())

	v, err := svc.Open(context.Background(), "hw", "student-1")
	require.NoError(t, err)
	require.Equal(t, gate.StateEligible, v.Gate.State)
	require.True(t, v.Gate.Controls.Submit)

	_, pending, err := svc.Pending(context.Background(), v.SessionID)
	require.NoError(t, err)
	require.False(t, pending, "homework must not request a position")
}

func TestCheckService_ReportFixNearSite(t *testing.T) {
	clock := newFakeClock()
	pub := &mockPublisher{}
	svc := newCheckService(t, internshipWindows(), &mockAnswerRepo{}, pub, clock)
	ctx := context.Background()

	v, err := svc.Open(ctx, "task-1", "student-1")
	require.NoError(t, err)
	require.Equal(t, gate.StateChecking, v.Gate.State)
	require.NotNil(t, v.Gate.Request)
	require.False(t, v.Gate.Controls.Submit)
	waitPending(t, svc, v.SessionID)

	near := geospatial.Offset(site, 120, 0)
	v, err = svc.ReportFix(ctx, v.SessionID, domain.PositionSample{Point: near, AccuracyMeters: 12, CapturedAt: clock.Now()})
	require.NoError(t, err)
	require.Equal(t, gate.StateEligible, v.Gate.State)
	require.Equal(t, domain.ReasonOK, v.Gate.Verdict.Reason)

	events := pub.checkEvents()
	require.Len(t, events, 1)
	require.Equal(t, v.SessionID, events[0].SessionID)
	require.True(t, events[0].Verdict.Allowed)

	sample, err := svc.Authorize(ctx, v.SessionID, "task-1", "student-1")
	require.NoError(t, err)
	require.InDelta(t, near.Lat, sample.Point.Lat, 1e-9)
}

func TestCheckService_ReportFixTooFar(t *testing.T) {
	clock := newFakeClock()
	svc := newCheckService(t, internshipWindows(), &mockAnswerRepo{}, nil, clock)
	ctx := context.Background()

	v, err := svc.Open(ctx, "task-1", "student-1")
	require.NoError(t, err)
	waitPending(t, svc, v.SessionID)

	far := geospatial.Offset(site, 0, 1500)
	v, err = svc.ReportFix(ctx, v.SessionID, domain.PositionSample{Point: far, AccuracyMeters: 10, CapturedAt: clock.Now()})
	require.NoError(t, err)
	require.Equal(t, gate.StateBlocked, v.Gate.State)
	require.Equal(t, domain.ReasonTooFar, v.Gate.Verdict.Reason)
	require.Contains(t, v.Gate.Message, "m away")

	_, err = svc.Authorize(ctx, v.SessionID, "task-1", "student-1")
	require.ErrorIs(t, err, domain.ErrSubmissionBlocked)
}

func TestCheckService_ReportErrorThenRetry(t *testing.T) {
	clock := newFakeClock()
	svc := newCheckService(t, internshipWindows(), &mockAnswerRepo{}, nil, clock)
	ctx := context.Background()

	v, err := svc.Open(ctx, "task-1", "student-1")
	require.NoError(t, err)
	waitPending(t, svc, v.SessionID)

	v, err = svc.ReportError(ctx, v.SessionID, domain.NewLocationError(domain.LocationPermissionDenied, ""))
	require.NoError(t, err)
	require.Equal(t, gate.StateBlocked, v.Gate.State)
	require.Equal(t, "PERMISSION_DENIED", v.Gate.LocationError)

	v, started, err := svc.Retry(ctx, v.SessionID)
	require.NoError(t, err)
	require.True(t, started)
	require.Equal(t, gate.StateChecking, v.Gate.State)

	// A second retry while in flight does nothing.
	_, started, err = svc.Retry(ctx, v.SessionID)
	require.NoError(t, err)
	require.False(t, started)

	waitPending(t, svc, v.SessionID)
	v, err = svc.ReportFix(ctx, v.SessionID, domain.PositionSample{Point: site, AccuracyMeters: 5, CapturedAt: clock.Now()})
	require.NoError(t, err)
	require.Equal(t, gate.StateEligible, v.Gate.State)
	require.Equal(t, 2, v.Gate.Attempts)
}

func TestCheckService_UnsolicitedFixRejected(t *testing.T) {
	clock := newFakeClock()
	svc := newCheckService(t, internshipWindows(), &mockAnswerRepo{}, nil, clock)
	ctx := context.Background()

	v, err := svc.Open(ctx, "task-1", "student-1")
	require.NoError(t, err)
	waitPending(t, svc, v.SessionID)
	_, err = svc.ReportFix(ctx, v.SessionID, domain.PositionSample{Point: site, CapturedAt: clock.Now()})
	require.NoError(t, err)

	_, err = svc.ReportFix(ctx, v.SessionID, domain.PositionSample{Point: site, CapturedAt: clock.Now()})
	require.ErrorIs(t, err, device.ErrNoPendingRequest)
}

func TestCheckService_HandleFix(t *testing.T) {
	clock := newFakeClock()
	svc := newCheckService(t, internshipWindows(), &mockAnswerRepo{}, nil, clock)
	ctx := context.Background()

	v, err := svc.Open(ctx, "task-1", "student-1")
	require.NoError(t, err)
	waitPending(t, svc, v.SessionID)

	err = svc.HandleFix(ctx, ports.FixReport{SessionID: v.SessionID, Error: domain.NewLocationError(domain.LocationTimeout, "")})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, _ := svc.Get(ctx, v.SessionID)
		return got.Gate.State == gate.StateBlocked && got.Gate.LocationError == "TIMEOUT"
	}, time.Second, 5*time.Millisecond)

	err = svc.HandleFix(ctx, ports.FixReport{SessionID: "nope"})
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestCheckService_CloseDropsLateFix(t *testing.T) {
	clock := newFakeClock()
	pub := &mockPublisher{}
	svc := newCheckService(t, internshipWindows(), &mockAnswerRepo{}, pub, clock)
	ctx := context.Background()

	v, err := svc.Open(ctx, "task-1", "student-1")
	require.NoError(t, err)
	waitPending(t, svc, v.SessionID)

	require.NoError(t, svc.Close(ctx, v.SessionID))
	_, err = svc.Get(ctx, v.SessionID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	require.ErrorIs(t, svc.Close(ctx, v.SessionID), domain.ErrSessionNotFound)
	require.Empty(t, pub.checkEvents())
}

func TestCheckService_ReopenReplacesSession(t *testing.T) {
	svc := newCheckService(t, internshipWindows(), &mockAnswerRepo{}, nil, newFakeClock())
	ctx := context.Background()

	first, err := svc.Open(ctx, "task-1", "student-1")
	require.NoError(t, err)
	second, err := svc.Open(ctx, "task-1", "student-1")
	require.NoError(t, err)
	require.NotEqual(t, first.SessionID, second.SessionID)

	_, err = svc.Get(ctx, first.SessionID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestCheckService_PreviouslyVerifiedIsDisplayOnly(t *testing.T) {
	stored := geospatial.Offset(site, 50, 50)
	answers := &mockAnswerRepo{getByTaskAndStudentFn: func(ctx context.Context, taskID, studentID string) (*domain.Answer, error) {
		return &domain.Answer{ID: "a1", TaskID: taskID, StudentID: studentID, Location: &stored}, nil
	}}
	svc := newCheckService(t, internshipWindows(), answers, nil, newFakeClock())

	v, err := svc.Open(context.Background(), "task-1", "student-1")
	require.NoError(t, err)
	require.NotNil(t, v.PreviouslyVerified)
	require.Equal(t, stored, *v.PreviouslyVerified)
	require.Equal(t, gate.StateChecking, v.Gate.State, "a stored location must not settle the gate")
}

func TestCheckService_AuthorizeWrongForm(t *testing.T) {
	clock := newFakeClock()
	svc := newCheckService(t, internshipWindows(), &mockAnswerRepo{}, nil, clock)
	ctx := context.Background()

	v, err := svc.Open(ctx, "task-1", "student-1")
	require.NoError(t, err)

	_, err = svc.Authorize(ctx, v.SessionID, "task-1", "student-2")
	require.ErrorIs(t, err, domain.ErrSubmissionBlocked)
	_, err = svc.Authorize(ctx, "missing", "task-1", "student-1")
	require.ErrorIs(t, err, domain.ErrSubmissionBlocked)
	_, err = svc.Authorize(ctx, v.SessionID, "task-1", "student-1")
	require.ErrorIs(t, err, domain.ErrSubmissionBlocked, "a checking gate must block")
}

func TestCheckService_SweepExpiresIdleSessions(t *testing.T) {
	clock := newFakeClock()
	svc := newCheckService(t, internshipWindows(), &mockAnswerRepo{}, nil, clock)
	ctx := context.Background()

	idle, err := svc.Open(ctx, "task-1", "student-1")
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)
	active, err := svc.Open(ctx, "task-1", "student-2")
	require.NoError(t, err)
	clock.Advance(15 * time.Minute)

	require.Equal(t, 1, svc.Sweep(ctx))
	_, err = svc.Get(ctx, idle.SessionID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = svc.Get(ctx, active.SessionID)
	require.NoError(t, err)
}

func TestCheckService_Evaluate(t *testing.T) {
	svc := newCheckService(t, internshipWindows(), &mockAnswerRepo{}, nil, newFakeClock())
	w := internshipWindows().window

	v := svc.Evaluate(w, nil, nil)
	require.False(t, v.Allowed)
	require.Equal(t, domain.ReasonLocationNotAcquired, v.Reason)

	tomorrow := domain.DateOf(testNow.Add(24*time.Hour), nil)
	v = svc.Evaluate(w, &domain.PositionSample{Point: site}, &tomorrow)
	require.Equal(t, domain.ReasonWrongDate, v.Reason)
}

func TestCheckService_ConcurrentRetriesStartOneCheck(t *testing.T) {
	clock := newFakeClock()
	svc := newCheckService(t, internshipWindows(), &mockAnswerRepo{}, nil, clock)
	ctx := context.Background()

	v, err := svc.Open(ctx, "task-1", "student-1")
	require.NoError(t, err)
	waitPending(t, svc, v.SessionID)
	_, err = svc.ReportError(ctx, v.SessionID, domain.NewLocationError(domain.LocationPositionUnavailable, ""))
	require.NoError(t, err)

	var mu sync.Mutex
	started := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := svc.Retry(ctx, v.SessionID); err == nil && ok {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, started)
}

func TestCheckService_OpenUnknownTask(t *testing.T) {
	svc := newCheckService(t, internshipWindows(), &mockAnswerRepo{}, nil, newFakeClock())
	_, err := svc.Open(context.Background(), "missing", "student-1")
	require.True(t, errors.Is(err, domain.ErrNotFound))
}
