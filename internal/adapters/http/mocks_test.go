package http_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samirrijal/classroom/internal/core/domain"
)

var testNow = time.Date(2026, time.October, 18, 9, 30, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// ---- In-memory repositories ----

type memGroupRepo struct {
	mu     sync.Mutex
	groups map[string]domain.Group
}

func (m *memGroupRepo) Create(ctx context.Context, g *domain.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.groups == nil {
		m.groups = make(map[string]domain.Group)
	}
	m.groups[g.ID] = *g
	return nil
}

func (m *memGroupRepo) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &g, nil
}

type memTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]domain.Task
}

func (m *memTaskRepo) Create(ctx context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tasks == nil {
		m.tasks = make(map[string]domain.Task)
	}
	m.tasks[t.ID] = *t
	return nil
}

func (m *memTaskRepo) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (m *memTaskRepo) ListByGroup(ctx context.Context, groupID string, offset, limit int) ([]domain.Task, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.Task
	for _, t := range m.tasks {
		if t.GroupID == groupID {
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	return all[offset:min(offset+limit, total)], total, nil
}

type memAnswerRepo struct {
	mu      sync.Mutex
	answers map[string]domain.Answer
}

func (m *memAnswerRepo) Create(ctx context.Context, a *domain.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.answers == nil {
		m.answers = make(map[string]domain.Answer)
	}
	for _, existing := range m.answers {
		if existing.TaskID == a.TaskID && existing.StudentID == a.StudentID {
			return domain.ErrAlreadySubmitted
		}
	}
	m.answers[a.ID] = *a
	return nil
}

func (m *memAnswerRepo) GetByID(ctx context.Context, id string) (*domain.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (m *memAnswerRepo) GetByTaskAndStudent(ctx context.Context, taskID, studentID string) (*domain.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.answers {
		if a.TaskID == taskID && a.StudentID == studentID {
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memAnswerRepo) SetGrade(ctx context.Context, id string, grade *int, feedback string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Grade, a.Feedback = grade, feedback
	if grade != nil {
		at := testNow
		a.GradedAt = &at
	}
	m.answers[id] = a
	return nil
}

// ---- Mock Pinger ----

type mockPinger struct {
	pingFn func(ctx context.Context) error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}
