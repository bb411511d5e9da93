package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/ports"
)

// windowCacheTTL is short so a teacher moving the group location is
// picked up by the next check.
const windowCacheTTL = 60

// TaskService handles task records and derives their submission windows.
type TaskService struct {
	tasks  ports.TaskRepository
	groups ports.GroupRepository
	cache  ports.CacheService
	clock  ports.Clock
}

// NewTaskService creates a new TaskService.
func NewTaskService(tasks ports.TaskRepository, groups ports.GroupRepository, cache ports.CacheService, clock ports.Clock) *TaskService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &TaskService{tasks: tasks, groups: groups, cache: cache, clock: clock}
}

// Create validates and stores a task. The group must exist.
func (s *TaskService) Create(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if err := validateStruct(t); err != nil {
		return nil, err
	}
	if _, err := s.groups.GetByID(ctx, t.GroupID); err != nil {
		return nil, fmt.Errorf("lookup group %s: %w", t.GroupID, err)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = s.clock.Now().UTC()

	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// GetByID returns a single task.
func (s *TaskService) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	return s.tasks.GetByID(ctx, id)
}

// ListByGroup returns a page of a group's tasks and the total count.
func (s *TaskService) ListByGroup(ctx context.Context, groupID string, offset, limit int) ([]domain.Task, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.tasks.ListByGroup(ctx, groupID, offset, limit)
}

// Window builds the submission window of a task from the task and its
// group's registered location.
func (s *TaskService) Window(ctx context.Context, taskID string) (*domain.Task, domain.TaskWindow, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, domain.TaskWindow{}, err
	}

	cacheKey := "tasks:window:" + taskID
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var w domain.TaskWindow
			if err := json.Unmarshal(data, &w); err == nil {
				return task, w, nil
			}
		}
	}

	w := domain.TaskWindow{
		Kind:          task.Kind,
		ScheduledDate: task.ScheduledDate,
	}
	if task.Kind == domain.TaskKindInternship {
		group, err := s.groups.GetByID(ctx, task.GroupID)
		if err != nil {
			return nil, domain.TaskWindow{}, fmt.Errorf("lookup group %s: %w", task.GroupID, err)
		}
		if group.Location != nil {
			target := *group.Location
			w.Target = &target
		}
		w.AllowedRadiusMeters = group.RadiusMeters
	}

	if s.cache != nil {
		if data, err := json.Marshal(w); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, windowCacheTTL)
		}
	}
	return task, w, nil
}
