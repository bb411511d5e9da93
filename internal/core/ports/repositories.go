package ports

import (
	"context"

	"github.com/samirrijal/classroom/internal/core/domain"
)

// GroupRepository persists groups.
type GroupRepository interface {
	Create(ctx context.Context, group *domain.Group) error
	GetByID(ctx context.Context, id string) (*domain.Group, error)
}

// TaskRepository persists tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	ListByGroup(ctx context.Context, groupID string, offset, limit int) ([]domain.Task, int, error)
}

// AnswerRepository persists answers.
type AnswerRepository interface {
	Create(ctx context.Context, answer *domain.Answer) error
	GetByID(ctx context.Context, id string) (*domain.Answer, error)
	// GetByTaskAndStudent returns domain.ErrNotFound when the student has not answered.
	GetByTaskAndStudent(ctx context.Context, taskID, studentID string) (*domain.Answer, error)
	SetGrade(ctx context.Context, id string, grade *int, feedback string) error
}
