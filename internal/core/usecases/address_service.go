package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/ports"
	"github.com/samirrijal/classroom/internal/pkg/logging"
	"github.com/samirrijal/classroom/internal/pkg/metrics"
)

const (
	addressCacheTTL = 24 * 60 * 60
	// addressLookupTimeout keeps a slow geocoder from holding up the form.
	addressLookupTimeout = 3 * time.Second
)

// AddressService turns points into display addresses.
type AddressService struct {
	geocoder ports.ReverseGeocoder
	cache    ports.CacheService
}

// NewAddressService creates a new AddressService. geocoder may be nil, in
// which case every lookup yields the coordinate fallback.
func NewAddressService(geocoder ports.ReverseGeocoder, cache ports.CacheService) *AddressService {
	return &AddressService{geocoder: geocoder, cache: cache}
}

// Fallback is the address shown when no street address is available.
func Fallback(p domain.GeoPoint) domain.Address {
	return domain.Address{Point: p, DisplayName: p.String(), Fallback: true}
}

// Describe returns the address of p. It never fails: lookup errors yield
// the "lat, lon" fallback.
func (s *AddressService) Describe(ctx context.Context, p domain.GeoPoint) domain.Address {
	if err := p.Validate(); err != nil || s.geocoder == nil {
		metrics.GeocodeFallbacks.Inc()
		return Fallback(p)
	}

	// ~11 m grid so nearby fixes share an entry.
	cacheKey := fmt.Sprintf("geo:reverse:%.4f:%.4f", p.Lat, p.Lon)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var addr domain.Address
			if err := json.Unmarshal(data, &addr); err == nil {
				metrics.CacheHits.WithLabelValues("reverse_geocode").Inc()
				addr.Point = p
				return addr
			}
		}
		metrics.CacheMisses.WithLabelValues("reverse_geocode").Inc()
	}

	lctx, cancel := context.WithTimeout(ctx, addressLookupTimeout)
	defer cancel()
	addr, err := s.geocoder.Reverse(lctx, p)
	if err != nil || addr.DisplayName == "" {
		if err != nil {
			logging.FromContext(ctx).Debug("reverse geocode failed", "point", p.String(), "error", err)
		}
		metrics.GeocodeFallbacks.Inc()
		return Fallback(p)
	}
	addr.Point = p

	if s.cache != nil {
		if data, err := json.Marshal(addr); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, addressCacheTTL)
		}
	}
	return addr
}
