package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrSubmissionBlocked = errors.New("submission blocked")
	ErrSessionNotFound   = errors.New("check session not found")
	ErrAlreadySubmitted  = errors.New("answer already submitted")
)

// LocationErrorCode follows the browser geolocation API numbering.
type LocationErrorCode int

const (
	LocationUnsupported         LocationErrorCode = 0
	LocationPermissionDenied    LocationErrorCode = 1
	LocationPositionUnavailable LocationErrorCode = 2
	LocationTimeout             LocationErrorCode = 3
)

func (c LocationErrorCode) String() string {
	switch c {
	case LocationPermissionDenied:
		return "PERMISSION_DENIED"
	case LocationPositionUnavailable:
		return "POSITION_UNAVAILABLE"
	case LocationTimeout:
		return "TIMEOUT"
	default:
		return "UNSUPPORTED"
	}
}

// ParseLocationErrorCode maps a reported code or name to a LocationErrorCode.
func ParseLocationErrorCode(s string) (LocationErrorCode, error) {
	switch s {
	case "0", "UNSUPPORTED", "unsupported":
		return LocationUnsupported, nil
	case "1", "PERMISSION_DENIED", "permission_denied":
		return LocationPermissionDenied, nil
	case "2", "POSITION_UNAVAILABLE", "position_unavailable":
		return LocationPositionUnavailable, nil
	case "3", "TIMEOUT", "timeout":
		return LocationTimeout, nil
	}
	return 0, fmt.Errorf("%w: unknown location error code %q", ErrValidation, s)
}

// LocationError is a platform-level acquisition failure.
type LocationError struct {
	Code   LocationErrorCode
	Detail string
}

func (e *LocationError) Error() string {
	if e.Detail == "" {
		return "location: " + e.Code.String()
	}
	return "location: " + e.Code.String() + ": " + e.Detail
}

// NewLocationError builds a LocationError.
func NewLocationError(code LocationErrorCode, detail string) *LocationError {
	return &LocationError{Code: code, Detail: detail}
}

// AsLocationError unwraps err into a LocationError when it is one.
func AsLocationError(err error) (*LocationError, bool) {
	var le *LocationError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// ValidationError carries per-field messages keyed by JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
