package usecases_test

import (
	"context"
	"sync"
	"time"

	"github.com/samirrijal/classroom/internal/core/domain"
)

var testNow = time.Date(2026, time.October, 18, 9, 30, 0, 0, time.UTC)

// --- Clock ---

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: testNow} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// --- Mock GroupRepository ---

type mockGroupRepo struct {
	createFn  func(ctx context.Context, g *domain.Group) error
	getByIDFn func(ctx context.Context, id string) (*domain.Group, error)
}

func (m *mockGroupRepo) Create(ctx context.Context, g *domain.Group) error {
	if m.createFn != nil {
		return m.createFn(ctx, g)
	}
	return nil
}

func (m *mockGroupRepo) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

// --- Mock TaskRepository ---

type mockTaskRepo struct {
	createFn      func(ctx context.Context, t *domain.Task) error
	getByIDFn     func(ctx context.Context, id string) (*domain.Task, error)
	listByGroupFn func(ctx context.Context, groupID string, offset, limit int) ([]domain.Task, int, error)
}

func (m *mockTaskRepo) Create(ctx context.Context, t *domain.Task) error {
	if m.createFn != nil {
		return m.createFn(ctx, t)
	}
	return nil
}

func (m *mockTaskRepo) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockTaskRepo) ListByGroup(ctx context.Context, groupID string, offset, limit int) ([]domain.Task, int, error) {
	if m.listByGroupFn != nil {
		return m.listByGroupFn(ctx, groupID, offset, limit)
	}
	return nil, 0, nil
}

// --- Mock AnswerRepository ---

type mockAnswerRepo struct {
	createFn              func(ctx context.Context, a *domain.Answer) error
	getByIDFn             func(ctx context.Context, id string) (*domain.Answer, error)
	getByTaskAndStudentFn func(ctx context.Context, taskID, studentID string) (*domain.Answer, error)
	setGradeFn            func(ctx context.Context, id string, grade *int, feedback string) error
}

func (m *mockAnswerRepo) Create(ctx context.Context, a *domain.Answer) error {
	if m.createFn != nil {
		return m.createFn(ctx, a)
	}
	return nil
}

func (m *mockAnswerRepo) GetByID(ctx context.Context, id string) (*domain.Answer, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockAnswerRepo) GetByTaskAndStudent(ctx context.Context, taskID, studentID string) (*domain.Answer, error) {
	if m.getByTaskAndStudentFn != nil {
		return m.getByTaskAndStudentFn(ctx, taskID, studentID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockAnswerRepo) SetGrade(ctx context.Context, id string, grade *int, feedback string) error {
	if m.setGradeFn != nil {
		return m.setGradeFn(ctx, id, grade, feedback)
	}
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu        sync.Mutex
	checks    []domain.CheckEvent
	states    map[string]int
	submitted []domain.Answer
	graded    []domain.GradeEvent
	gradedErr error
}

func (m *mockPublisher) PublishCheck(ctx context.Context, ev *domain.CheckEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, *ev)
	return nil
}

func (m *mockPublisher) PublishGateState(ctx context.Context, sessionID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states == nil {
		m.states = make(map[string]int)
	}
	m.states[sessionID]++
	return nil
}

func (m *mockPublisher) PublishAnswerSubmitted(ctx context.Context, a *domain.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, *a)
	return nil
}

func (m *mockPublisher) PublishAnswerGraded(ctx context.Context, ev *domain.GradeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graded = append(m.graded, *ev)
	return m.gradedErr
}

func (m *mockPublisher) checkEvents() []domain.CheckEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CheckEvent(nil), m.checks...)
}

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.sets++
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Mock ReverseGeocoder ---

type mockGeocoder struct {
	calls     int
	reverseFn func(ctx context.Context, p domain.GeoPoint) (domain.Address, error)
}

func (m *mockGeocoder) Reverse(ctx context.Context, p domain.GeoPoint) (domain.Address, error) {
	m.calls++
	return m.reverseFn(ctx, p)
}

// --- Mock GradeDispatcher ---

type mockDispatcher struct {
	dispatchFn func(ctx context.Context, answerID string, grade int, feedback string) (string, error)
}

func (m *mockDispatcher) DispatchGrade(ctx context.Context, answerID string, grade int, feedback string) (string, error) {
	return m.dispatchFn(ctx, answerID, grade, feedback)
}
