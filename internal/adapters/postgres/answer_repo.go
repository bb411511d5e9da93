package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/classroom/internal/core/domain"
)

// AnswerRepo implements ports.AnswerRepository with pgx.
type AnswerRepo struct {
	db *DB
}

// NewAnswerRepo creates a new AnswerRepo.
func NewAnswerRepo(db *DB) *AnswerRepo {
	return &AnswerRepo{db: db}
}

const answerColumns = `id, task_id, student_id, comment, file_url, location_lat, location_lng,
	grade, feedback, submitted_at, graded_at`

// Create inserts an answer. A second answer by the same student for the
// same task violates the unique key and maps to ErrAlreadySubmitted.
func (r *AnswerRepo) Create(ctx context.Context, a *domain.Answer) error {
	lat, lng := latLng(a.Location)
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO answers (`+answerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.TaskID, a.StudentID, a.Comment, a.FileURL, lat, lng,
		a.Grade, a.Feedback, a.SubmittedAt, a.GradedAt)
	return mapErr(err, "insert answer")
}

// GetByID returns an answer by id.
func (r *AnswerRepo) GetByID(ctx context.Context, id string) (*domain.Answer, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+answerColumns+` FROM answers WHERE id = $1`, id)
	a, err := scanAnswer(row)
	if err != nil {
		return nil, mapErr(err, "answer "+id)
	}
	return a, nil
}

// GetByTaskAndStudent returns the student's answer for a task.
func (r *AnswerRepo) GetByTaskAndStudent(ctx context.Context, taskID, studentID string) (*domain.Answer, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT `+answerColumns+`
		FROM answers WHERE task_id = $1 AND student_id = $2
	`, taskID, studentID)
	a, err := scanAnswer(row)
	if err != nil {
		return nil, mapErr(err, "answer for task "+taskID)
	}
	return a, nil
}

// SetGrade writes or clears (grade == nil) the grade of an answer.
func (r *AnswerRepo) SetGrade(ctx context.Context, id string, grade *int, feedback string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE answers
		SET grade = $2, feedback = $3,
		    graded_at = CASE WHEN $2::int IS NULL THEN NULL ELSE now() END
		WHERE id = $1
	`, id, grade, feedback)
	if err != nil {
		return mapErr(err, "set grade")
	}
	if tag.RowsAffected() == 0 {
		return mapErr(pgx.ErrNoRows, "answer "+id)
	}
	return nil
}

func scanAnswer(row pgx.Row) (*domain.Answer, error) {
	var a domain.Answer
	var lat, lng *float64
	if err := row.Scan(&a.ID, &a.TaskID, &a.StudentID, &a.Comment, &a.FileURL, &lat, &lng,
		&a.Grade, &a.Feedback, &a.SubmittedAt, &a.GradedAt); err != nil {
		return nil, err
	}
	a.Location = point(lat, lng)
	return &a, nil
}
