package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/ports"
)

// FixMessage is the wire form of a device report: either a fix or a
// geolocation error code (1 permission denied, 2 unavailable, 3 timeout,
// 0 unsupported).
type FixMessage struct {
	Lat        *float64  `json:"lat,omitempty"`
	Lon        *float64  `json:"lon,omitempty"`
	Accuracy   float64   `json:"accuracy,omitempty"`
	CapturedAt time.Time `json:"captured_at,omitempty"`
	ErrorCode  *int      `json:"error_code,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// FixMessageFromSample builds the wire form of a fix.
func FixMessageFromSample(s domain.PositionSample) FixMessage {
	lat, lon := s.Point.Lat, s.Point.Lon
	return FixMessage{Lat: &lat, Lon: &lon, Accuracy: s.AccuracyMeters, CapturedAt: s.CapturedAt}
}

// FixMessageFromError builds the wire form of a platform error.
func FixMessageFromError(e *domain.LocationError) FixMessage {
	code := int(e.Code)
	return FixMessage{ErrorCode: &code, Message: e.Detail}
}

// Report converts the message into a ports.FixReport for sessionID.
func (m FixMessage) Report(sessionID string) (ports.FixReport, error) {
	r := ports.FixReport{SessionID: sessionID}
	switch {
	case m.ErrorCode != nil:
		code, err := domain.ParseLocationErrorCode(fmt.Sprint(*m.ErrorCode))
		if err != nil {
			return r, err
		}
		r.Error = domain.NewLocationError(code, m.Message)
	case m.Lat != nil && m.Lon != nil:
		s := domain.PositionSample{
			Point:          domain.GeoPoint{Lat: *m.Lat, Lon: *m.Lon},
			AccuracyMeters: m.Accuracy,
			CapturedAt:     m.CapturedAt,
		}
		if err := s.Validate(); err != nil {
			return r, err
		}
		r.Sample = &s
	default:
		return r, fmt.Errorf("%w: report carries neither a position nor an error code", domain.ErrValidation)
	}
	return r, nil
}

// Subscriber implements ports.FixSubscriber on core NATS. Fixes are only
// meaningful to the acquisition waiting for them, so nothing is persisted.
type Subscriber struct {
	conn   *nats.Conn
	owned  bool
	logger *slog.Logger
	subs   []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Subscriber{conn: conn, owned: true, logger: slog.Default()}, nil
}

// NewSubscriberWithConn creates a subscriber sharing conn.
func NewSubscriberWithConn(conn *nats.Conn) *Subscriber {
	return &Subscriber{conn: conn, logger: slog.Default()}
}

// SubscribeFixes delivers every device report to handler. Every API
// replica receives every report and only owns its own sessions, so reports
// for unknown sessions are logged at debug level.
func (s *Subscriber) SubscribeFixes(ctx context.Context, handler func(ctx context.Context, report ports.FixReport) error) error {
	sub, err := s.conn.Subscribe(SubjectFixPrefix+"*", func(msg *nats.Msg) {
		sessionID := strings.TrimPrefix(msg.Subject, SubjectFixPrefix)
		var m FixMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			s.logger.Warn("malformed fix report", "session", sessionID, "error", err)
			return
		}
		report, err := m.Report(sessionID)
		if err != nil {
			s.logger.Warn("invalid fix report", "session", sessionID, "error", err)
			return
		}
		if err := handler(ctx, report); err != nil {
			s.logger.Debug("fix report not applied", "session", sessionID, "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	if s.owned {
		_ = s.conn.Drain()
	}
}
