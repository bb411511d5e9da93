package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/classroom/internal/adapters/nats"
	"github.com/samirrijal/classroom/internal/adapters/postgres"
	temporaladapter "github.com/samirrijal/classroom/internal/adapters/temporal"
	"github.com/samirrijal/classroom/internal/core/ports"
	"github.com/samirrijal/classroom/internal/core/usecases"
	"github.com/samirrijal/classroom/internal/pkg/config"
	"github.com/samirrijal/classroom/internal/pkg/logging"
	"github.com/samirrijal/classroom/internal/workflows"
)

func main() {
	cfg, err := config.Load("classroom-grader")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// The grader publishes the graded event itself, so NATS is required.
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer pub.Close()

	c, err := temporaladapter.Dial(cfg.Temporal.HostPort, cfg.Temporal.Namespace)
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	// Submission needs neither tasks nor an authorizer here; only the
	// grading half of the service is driven by the activities.
	answers := usecases.NewAnswerService(postgres.NewAnswerRepo(db), nil, nil, pub, nil, ports.SystemClock{})

	queue := cfg.Temporal.TaskQueue
	if queue == "" {
		queue = workflows.DefaultTaskQueue
	}
	w := worker.New(c, queue, worker.Options{})
	w.RegisterWorkflow(workflows.GradeAnswerWorkflow)
	w.RegisterActivity(&workflows.GradeActivities{Answers: answers})

	slog.Info("grader worker started", "queue", queue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
