package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/classroom/internal/core/domain"
)

// TaskRepo implements ports.TaskRepository with pgx.
type TaskRepo struct {
	db *DB
}

// NewTaskRepo creates a new TaskRepo.
func NewTaskRepo(db *DB) *TaskRepo {
	return &TaskRepo{db: db}
}

const taskColumns = `id, group_id, title, description, kind, scheduled_date, deadline, created_at`

// Create inserts a task.
func (r *TaskRepo) Create(ctx context.Context, t *domain.Task) error {
	var scheduled *time.Time
	if t.ScheduledDate != nil {
		d := t.ScheduledDate.Time()
		scheduled = &d
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.GroupID, t.Title, t.Description, string(t.Kind), scheduled, t.Deadline, t.CreatedAt)
	return mapErr(err, "insert task")
}

// GetByID returns a task by id.
func (r *TaskRepo) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, mapErr(err, "task "+id)
	}
	return t, nil
}

// ListByGroup returns a page of tasks, newest first, and the total count.
func (r *TaskRepo) ListByGroup(ctx context.Context, groupID string, offset, limit int) ([]domain.Task, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM tasks WHERE group_id = $1`, groupID).Scan(&total); err != nil {
		return nil, 0, mapErr(err, "count tasks")
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks WHERE group_id = $1
		ORDER BY created_at DESC, id
		OFFSET $2 LIMIT $3
	`, groupID, offset, limit)
	if err != nil {
		return nil, 0, mapErr(err, "list tasks")
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0, limit)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, total, rows.Err()
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	var kind string
	var scheduled *time.Time
	if err := row.Scan(&t.ID, &t.GroupID, &t.Title, &t.Description, &kind, &scheduled, &t.Deadline, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Kind = domain.TaskKind(kind)
	if scheduled != nil {
		d := domain.DateOf(*scheduled, time.UTC)
		t.ScheduledDate = &d
	}
	return &t, nil
}
