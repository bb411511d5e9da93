package domain

import (
	"time"
)

// Group is a class led by a teacher, optionally registered at a location.
type Group struct {
	ID           string    `json:"id"`
	Name         string    `json:"name" validate:"notblank,max=200"`
	TeacherID    string    `json:"teacher_id" validate:"required"`
	Location     *GeoPoint `json:"location,omitempty"`
	RadiusMeters float64   `json:"radius_meters" validate:"gte=0,lte=100000"`
	CreatedAt    time.Time `json:"created_at"`
}

// Task is an assignment given to a group.
type Task struct {
	ID            string     `json:"id"`
	GroupID       string     `json:"group_id" validate:"required"`
	Title         string     `json:"title" validate:"notblank,max=300"`
	Description   string     `json:"description,omitempty" validate:"max=10000"`
	Kind          TaskKind   `json:"kind" validate:"required,oneof=homework internship"`
	ScheduledDate *Date      `json:"scheduled_date,omitempty"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Answer is a student's submission for a task.
type Answer struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	StudentID   string     `json:"student_id"`
	Comment     string     `json:"comment,omitempty" validate:"max=10000"`
	FileURL     string     `json:"file_url,omitempty" validate:"omitempty,url"`
	Location    *GeoPoint  `json:"location,omitempty"` // location_lat / location_lng
	Grade       *int       `json:"grade,omitempty"`
	Feedback    string     `json:"feedback,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	GradedAt    *time.Time `json:"graded_at,omitempty"`
}

// Graded reports whether a teacher already graded the answer.
func (a *Answer) Graded() bool { return a.Grade != nil }

// GradeEvent is published after a grade is applied.
type GradeEvent struct {
	AnswerID  string    `json:"answer_id"`
	TaskID    string    `json:"task_id"`
	StudentID string    `json:"student_id"`
	Grade     int       `json:"grade"`
	GradedAt  time.Time `json:"graded_at"`
}

// CheckEvent is published after every eligibility check resolves.
type CheckEvent struct {
	SessionID string             `json:"session_id"`
	TaskID    string             `json:"task_id"`
	StudentID string             `json:"student_id"`
	Verdict   EligibilityVerdict `json:"verdict"`
	Error     string             `json:"error,omitempty"`
	Time      time.Time          `json:"time"`
}
