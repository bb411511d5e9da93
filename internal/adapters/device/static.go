package device

import (
	"context"

	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/ports"
)

// Static answers every request with the same fix or error.
type Static struct {
	Sample *domain.PositionSample
	Err    *domain.LocationError
	Clock  ports.Clock
}

// Acquire returns the configured result. With neither set it reports Unsupported.
func (s Static) Acquire(ctx context.Context, _ domain.AcquireOptions) (domain.PositionSample, error) {
	if err := ctx.Err(); err != nil {
		return domain.PositionSample{}, err
	}
	if s.Err != nil {
		return domain.PositionSample{}, s.Err
	}
	if s.Sample == nil {
		return domain.PositionSample{}, domain.NewLocationError(domain.LocationUnsupported, "no position source configured")
	}
	sample := *s.Sample
	if sample.CapturedAt.IsZero() {
		clock := s.Clock
		if clock == nil {
			clock = ports.SystemClock{}
		}
		sample.CapturedAt = clock.Now()
	}
	return sample, nil
}
