package ports

import (
	"context"
	"time"

	"github.com/samirrijal/classroom/internal/core/domain"
)

// LocationAcquirer is the device location capability. Each call issues one
// independent position request and may block until opts.Timeout or ctx ends.
// Failures are *domain.LocationError.
type LocationAcquirer interface {
	Acquire(ctx context.Context, opts domain.AcquireOptions) (domain.PositionSample, error)
}

// ReportingAcquirer is an acquirer fed by the device itself: Acquire waits
// for the device to report through Deliver or Fail.
type ReportingAcquirer interface {
	LocationAcquirer
	Deliver(sample domain.PositionSample) error
	Fail(err *domain.LocationError) error
	Pending() (domain.AcquireOptions, bool)
}

// ReverseGeocoder resolves a point to a display address.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, point domain.GeoPoint) (domain.Address, error)
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishCheck(ctx context.Context, event *domain.CheckEvent) error
	PublishGateState(ctx context.Context, sessionID string, data []byte) error
	PublishAnswerSubmitted(ctx context.Context, answer *domain.Answer) error
	PublishAnswerGraded(ctx context.Context, event *domain.GradeEvent) error
}

// FixReport is a position (or platform error) reported by a device.
type FixReport struct {
	SessionID string
	Sample    *domain.PositionSample
	Error     *domain.LocationError
}

// FixSubscriber delivers device reports arriving over the broker.
type FixSubscriber interface {
	SubscribeFixes(ctx context.Context, handler func(ctx context.Context, report FixReport) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// GradeDispatcher hands grading off to a durable workflow engine.
type GradeDispatcher interface {
	DispatchGrade(ctx context.Context, answerID string, grade int, feedback string) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
