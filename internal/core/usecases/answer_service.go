package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/ports"
	"github.com/samirrijal/classroom/internal/pkg/logging"
	"github.com/samirrijal/classroom/internal/pkg/metrics"
	"github.com/samirrijal/classroom/internal/pkg/telemetry"
)

// SubmissionAuthorizer confirms that an open form may be submitted.
type SubmissionAuthorizer interface {
	Authorize(ctx context.Context, sessionID, taskID, studentID string) (*domain.PositionSample, error)
}

// SubmitRequest is a student's answer.
type SubmitRequest struct {
	TaskID    string `json:"task_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
	SessionID string `json:"session_id,omitempty"`
	Comment   string `json:"comment,omitempty" validate:"max=10000"`
	FileURL   string `json:"file_url,omitempty" validate:"omitempty,url"`
}

// GradeRequest is a teacher's grade for an answer.
type GradeRequest struct {
	Grade    int    `json:"grade" validate:"gte=0,lte=100"`
	Feedback string `json:"feedback,omitempty" validate:"max=10000"`
}

// GradeResult reports how a grade was applied.
type GradeResult struct {
	Answer     *domain.Answer `json:"answer,omitempty"`
	WorkflowID string         `json:"workflow_id,omitempty"`
}

// AnswerService handles answer submission and grading.
type AnswerService struct {
	answers    ports.AnswerRepository
	tasks      ports.TaskRepository
	authorizer SubmissionAuthorizer
	publisher  ports.EventPublisher
	dispatcher ports.GradeDispatcher
	clock      ports.Clock
}

// NewAnswerService creates a new AnswerService. publisher and dispatcher
// may be nil; without a dispatcher grades are applied synchronously.
func NewAnswerService(
	answers ports.AnswerRepository,
	tasks ports.TaskRepository,
	authorizer SubmissionAuthorizer,
	publisher ports.EventPublisher,
	dispatcher ports.GradeDispatcher,
	clock ports.Clock,
) *AnswerService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &AnswerService{
		answers:    answers,
		tasks:      tasks,
		authorizer: authorizer,
		publisher:  publisher,
		dispatcher: dispatcher,
		clock:      clock,
	}
}

// Submit stores an answer. Internship answers go through the session's
// gate and keep the verified fix as the answer location.
func (s *AnswerService) Submit(ctx context.Context, req SubmitRequest) (*domain.Answer, error) {
	ctx, span := tracer.Start(ctx, "AnswerService.Submit")
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrTaskID, req.TaskID))

	if err := validateStruct(req); err != nil {
		return nil, err
	}
	task, err := s.tasks.GetByID(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}

	existing, err := s.answers.GetByTaskAndStudent(ctx, task.ID, req.StudentID)
	switch {
	case err == nil && existing != nil:
		return nil, fmt.Errorf("%w: answer %s", domain.ErrAlreadySubmitted, existing.ID)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("lookup answer: %w", err)
	}

	answer := &domain.Answer{
		ID:          uuid.NewString(),
		TaskID:      task.ID,
		StudentID:   req.StudentID,
		Comment:     req.Comment,
		FileURL:     req.FileURL,
		SubmittedAt: s.clock.Now().UTC(),
	}

	if task.Kind == domain.TaskKindInternship {
		if req.SessionID == "" {
			metrics.SubmissionsRejected.WithLabelValues("no_session").Inc()
			return nil, fmt.Errorf("%w: a location check session is required", domain.ErrSubmissionBlocked)
		}
		sample, err := s.authorizer.Authorize(ctx, req.SessionID, task.ID, req.StudentID)
		if err != nil {
			metrics.SubmissionsRejected.WithLabelValues("gate").Inc()
			return nil, err
		}
		if sample != nil {
			p := sample.Point
			answer.Location = &p
		}
	}

	if err := s.answers.Create(ctx, answer); err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	metrics.AnswersSubmitted.WithLabelValues(string(task.Kind)).Inc()

	if s.publisher != nil {
		if err := s.publisher.PublishAnswerSubmitted(ctx, answer); err != nil {
			logging.FromContext(ctx).Warn("publish answer submitted", "answer", answer.ID, "error", err)
		}
	}
	return answer, nil
}

// GetByID returns a single answer.
func (s *AnswerService) GetByID(ctx context.Context, id string) (*domain.Answer, error) {
	return s.answers.GetByID(ctx, id)
}

// Grade validates a grade and applies it, through the workflow engine when
// one is configured.
func (s *AnswerService) Grade(ctx context.Context, answerID string, req GradeRequest) (*GradeResult, error) {
	ctx, span := tracer.Start(ctx, "AnswerService.Grade")
	defer span.End()

	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if _, err := s.answers.GetByID(ctx, answerID); err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		id, err := s.dispatcher.DispatchGrade(ctx, answerID, req.Grade, req.Feedback)
		if err != nil {
			return nil, fmt.Errorf("dispatch grade: %w", err)
		}
		return &GradeResult{WorkflowID: id}, nil
	}

	answer, err := s.ApplyGrade(ctx, answerID, req.Grade, req.Feedback)
	if err != nil {
		return nil, err
	}
	if err := s.PublishGraded(ctx, answer); err != nil {
		logging.FromContext(ctx).Warn("publish answer graded", "answer", answerID, "error", err)
	}
	return &GradeResult{Answer: answer}, nil
}

// ApplyGrade writes the grade and returns the updated answer.
func (s *AnswerService) ApplyGrade(ctx context.Context, answerID string, grade int, feedback string) (*domain.Answer, error) {
	if grade < 0 || grade > 100 {
		return nil, fieldError("grade", "grade must be between 0 and 100")
	}
	if err := s.answers.SetGrade(ctx, answerID, &grade, feedback); err != nil {
		return nil, fmt.Errorf("set grade: %w", err)
	}
	return s.answers.GetByID(ctx, answerID)
}

// RevertGrade restores the grade an answer had before a grading attempt
// (nil clears it). It compensates a failed grading workflow.
func (s *AnswerService) RevertGrade(ctx context.Context, answerID string, previous *int, feedback string) error {
	if err := s.answers.SetGrade(ctx, answerID, previous, feedback); err != nil {
		return fmt.Errorf("revert grade: %w", err)
	}
	return nil
}

// PublishGraded announces a graded answer.
func (s *AnswerService) PublishGraded(ctx context.Context, a *domain.Answer) error {
	if s.publisher == nil || a.Grade == nil {
		return nil
	}
	ev := &domain.GradeEvent{
		AnswerID:  a.ID,
		TaskID:    a.TaskID,
		StudentID: a.StudentID,
		Grade:     *a.Grade,
		GradedAt:  s.clock.Now().UTC(),
	}
	if a.GradedAt != nil {
		ev.GradedAt = *a.GradedAt
	}
	return s.publisher.PublishAnswerGraded(ctx, ev)
}
