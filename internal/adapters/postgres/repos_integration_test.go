//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/classroom/internal/adapters/postgres"
	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/migrations"
)

// setupTestDB connects to CLASSROOM_TEST_DSN and applies the schema.
func setupTestDB(t *testing.T) *postgres.DB {
	dsn := os.Getenv("CLASSROOM_TEST_DSN")
	if dsn == "" {
		t.Skip("CLASSROOM_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := postgres.New(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)

	up, err := migrations.Up()
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range up {
		if _, err := db.Pool.Exec(ctx, m.SQL); err != nil {
			t.Fatalf("apply %s: %v", m.Name, err)
		}
	}
	return db
}

func TestRepos_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	groups := postgres.NewGroupRepo(db)
	tasks := postgres.NewTaskRepo(db)
	answers := postgres.NewAnswerRepo(db)

	g := &domain.Group{
		ID: uuid.NewString(), Name: "Nursing", TeacherID: "t1",
		Location: &domain.GeoPoint{Lat: 43.263, Lon: -2.935}, RadiusMeters: 300, CreatedAt: now,
	}
	if err := groups.Create(ctx, g); err != nil {
		t.Fatalf("create group: %v", err)
	}
	gotGroup, err := groups.GetByID(ctx, g.ID)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if gotGroup.Location == nil || gotGroup.Location.Lat != 43.263 {
		t.Errorf("location lost: %+v", gotGroup.Location)
	}

	date := domain.Date{Year: 2026, Month: time.October, Day: 18}
	task := &domain.Task{
		ID: uuid.NewString(), GroupID: g.ID, Title: "Ward", Kind: domain.TaskKindInternship,
		ScheduledDate: &date, CreatedAt: now,
	}
	if err := tasks.Create(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	gotTask, err := tasks.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if gotTask.ScheduledDate == nil || *gotTask.ScheduledDate != date {
		t.Errorf("scheduled date lost: %+v", gotTask.ScheduledDate)
	}
	list, total, err := tasks.ListByGroup(ctx, g.ID, 0, 10)
	if err != nil || total != 1 || len(list) != 1 {
		t.Errorf("list: %v %d %d", err, total, len(list))
	}

	a := &domain.Answer{
		ID: uuid.NewString(), TaskID: task.ID, StudentID: "s1",
		Location: &domain.GeoPoint{Lat: 43.2631, Lon: -2.9351}, SubmittedAt: now,
	}
	if err := answers.Create(ctx, a); err != nil {
		t.Fatalf("create answer: %v", err)
	}
	dup := *a
	dup.ID = uuid.NewString()
	if err := answers.Create(ctx, &dup); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Errorf("expected ErrAlreadySubmitted, got %v", err)
	}

	grade := 90
	if err := answers.SetGrade(ctx, a.ID, &grade, "well done"); err != nil {
		t.Fatalf("set grade: %v", err)
	}
	got, err := answers.GetByTaskAndStudent(ctx, task.ID, "s1")
	if err != nil {
		t.Fatalf("get answer: %v", err)
	}
	if got.Grade == nil || *got.Grade != 90 || got.GradedAt == nil {
		t.Errorf("grade not stored: %+v", got)
	}
	if err := answers.SetGrade(ctx, a.ID, nil, ""); err != nil {
		t.Fatalf("clear grade: %v", err)
	}

	if _, err := answers.GetByID(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
