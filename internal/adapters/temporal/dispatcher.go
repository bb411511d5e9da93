// Package temporal starts grading workflows on a Temporal cluster.
package temporal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/classroom/internal/workflows"
)

// workflowStarter is the subset of client.Client the dispatcher uses.
type workflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Dispatcher implements ports.GradeDispatcher.
type Dispatcher struct {
	client    workflowStarter
	taskQueue string
}

// NewDispatcher creates a dispatcher posting to taskQueue.
func NewDispatcher(c client.Client, taskQueue string) *Dispatcher {
	return newDispatcher(c, taskQueue)
}

func newDispatcher(c workflowStarter, taskQueue string) *Dispatcher {
	if taskQueue == "" {
		taskQueue = workflows.DefaultTaskQueue
	}
	return &Dispatcher{client: c, taskQueue: taskQueue}
}

// DispatchGrade starts a GradeAnswerWorkflow and returns its workflow ID.
func (d *Dispatcher) DispatchGrade(ctx context.Context, answerID string, grade int, feedback string) (string, error) {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("grade-%s-%s", answerID, uuid.NewString()[:8]),
		TaskQueue: d.taskQueue,
	}
	run, err := d.client.ExecuteWorkflow(ctx, opts, workflows.GradeAnswerWorkflow, workflows.GradeInput{
		AnswerID: answerID,
		Grade:    grade,
		Feedback: feedback,
	})
	if err != nil {
		return "", fmt.Errorf("start grading workflow: %w", err)
	}
	return run.GetID(), nil
}

// Dial connects to the Temporal frontend at hostPort.
func Dial(hostPort, namespace string) (client.Client, error) {
	return client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
	})
}
