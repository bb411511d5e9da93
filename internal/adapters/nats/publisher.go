package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/classroom/internal/core/domain"
)

// Subjects used on the bus.
const (
	SubjectGatePrefix      = "classroom.gate."
	SubjectChecksPrefix    = "classroom.checks."
	SubjectFixPrefix       = "classroom.fix."
	SubjectAnswerSubmitted = "classroom.answers.submitted"
	SubjectAnswerGraded    = "classroom.answers.graded"
)

// GateSubject is the core subject carrying a session's gate snapshots.
func GateSubject(sessionID string) string { return SubjectGatePrefix + sessionID }

// FixSubject is the subject a device publishes its reports to.
func FixSubject(sessionID string) string { return SubjectFixPrefix + sessionID }

// Streams returns the JetStream streams the service relies on.
func Streams() []nats.StreamConfig {
	return []nats.StreamConfig{
		{
			Name:      "CLASSROOM_CHECKS",
			Subjects:  []string{SubjectChecksPrefix + ">"},
			Retention: nats.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "CLASSROOM_ANSWERS",
			Subjects:  []string{"classroom.answers.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    30 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}
}

// Publisher implements ports.EventPublisher using NATS JetStream for
// durable events and core NATS for gate snapshots.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	for _, cfg := range Streams() {
		cfg := cfg
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				conn.Close()
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishCheck(ctx context.Context, event *domain.CheckEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectChecksPrefix+event.TaskID, data, nats.Context(ctx), nats.MsgId(checkMsgID(event)))
	return err
}

func checkMsgID(ev *domain.CheckEvent) string {
	return fmt.Sprintf("%s-%d", ev.SessionID, ev.Time.UnixNano())
}

func (p *Publisher) PublishGateState(ctx context.Context, sessionID string, data []byte) error {
	return p.conn.Publish(GateSubject(sessionID), data)
}

func (p *Publisher) PublishAnswerSubmitted(ctx context.Context, answer *domain.Answer) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectAnswerSubmitted, data, nats.Context(ctx), nats.MsgId("submitted-"+answer.ID))
	return err
}

func (p *Publisher) PublishAnswerGraded(ctx context.Context, event *domain.GradeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectAnswerGraded, data, nats.Context(ctx))
	return err
}

// PublishFix sends a device report for a session, as a phone or a
// gpsd-equipped host would.
func (p *Publisher) PublishFix(ctx context.Context, sessionID string, msg FixMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.conn.Publish(FixSubject(sessionID), data)
}

// Conn exposes the underlying connection for relays sharing it.
func (p *Publisher) Conn() *nats.Conn { return p.conn }

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("classroom"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
