package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/classroom/internal/core/domain"
)

// Grader is the part of the answer service the grading activities drive.
type Grader interface {
	GetByID(ctx context.Context, id string) (*domain.Answer, error)
	ApplyGrade(ctx context.Context, answerID string, grade int, feedback string) (*domain.Answer, error)
	RevertGrade(ctx context.Context, answerID string, previous *int, feedback string) error
	PublishGraded(ctx context.Context, a *domain.Answer) error
}

// GradeActivities holds the activity implementations for the grading workflow.
type GradeActivities struct {
	Answers Grader
}

// AppliedGrade records what ApplyGrade replaced, for compensation.
type AppliedGrade struct {
	Answer           domain.Answer
	PreviousGrade    *int
	PreviousFeedback string
}

// ApplyGrade writes the grade and returns the answer before and after.
func (a *GradeActivities) ApplyGrade(ctx context.Context, in GradeInput) (*AppliedGrade, error) {
	before, err := a.Answers.GetByID(ctx, in.AnswerID)
	if err != nil {
		return nil, permanent(fmt.Errorf("get answer %s: %w", in.AnswerID, err))
	}
	after, err := a.Answers.ApplyGrade(ctx, in.AnswerID, in.Grade, in.Feedback)
	if err != nil {
		return nil, permanent(fmt.Errorf("apply grade: %w", err))
	}
	return &AppliedGrade{Answer: *after, PreviousGrade: before.Grade, PreviousFeedback: before.Feedback}, nil
}

// PublishGraded announces the graded answer.
func (a *GradeActivities) PublishGraded(ctx context.Context, answer domain.Answer) error {
	return a.Answers.PublishGraded(ctx, &answer)
}

// RevertGrade restores the previous grade (saga compensation / rollback).
func (a *GradeActivities) RevertGrade(ctx context.Context, applied AppliedGrade) error {
	if err := a.Answers.RevertGrade(ctx, applied.Answer.ID, applied.PreviousGrade, applied.PreviousFeedback); err != nil {
		return fmt.Errorf("revert grade %s: %w", applied.Answer.ID, err)
	}
	slog.Default().Info("grade reverted (saga compensation)", "answer", applied.Answer.ID)
	return nil
}

// permanent stops Temporal from retrying errors a retry cannot fix.
func permanent(err error) error {
	if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) {
		return temporal.NewNonRetryableApplicationError(err.Error(), "invalid_grade", err)
	}
	return err
}
