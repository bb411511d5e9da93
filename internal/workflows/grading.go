package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// DefaultTaskQueue is the queue the grader worker polls.
const DefaultTaskQueue = "grading-queue"

// GradeInput is the input for the grading workflow.
type GradeInput struct {
	AnswerID string
	Grade    int
	Feedback string
}

// GradeAnswerWorkflow applies a grade and announces it. If the
// announcement fails, the previous grade is restored (saga compensation).
func GradeAnswerWorkflow(ctx workflow.Context, input GradeInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting grading workflow", "answer", input.AnswerID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Step 1: Apply the grade
	var applied AppliedGrade
	if err := workflow.ExecuteActivity(ctx, "ApplyGrade", input).Get(ctx, &applied); err != nil {
		return err
	}

	// Step 2: Publish the graded event
	if err := workflow.ExecuteActivity(ctx, "PublishGraded", applied.Answer).Get(ctx, nil); err != nil {
		logger.Warn("publish failed, compensating", "error", err)
		// Compensate: restore the previous grade
		_ = workflow.ExecuteActivity(ctx, "RevertGrade", applied).Get(ctx, nil)
		return err
	}

	logger.Info("Grade applied", "answer", input.AnswerID, "grade", input.Grade)
	return nil
}
