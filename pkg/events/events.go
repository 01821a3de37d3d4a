// Package events publishes proposal lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-curriculum-api/pkg/jobs"
)

// Type names a lifecycle transition.
type Type string

const (
	TypeSubmitted Type = "submitted"
	TypeApproved  Type = "approved"
	TypeRejected  Type = "rejected"
	TypeEdited    Type = "edited"
	TypeForked    Type = "forked"
	TypeGenerated Type = "generated"
)

// Event is the JSON payload published for a transition.
type Event struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	ProposalID   string    `json:"proposal_id"`
	Kind         string    `json:"kind"`
	DisciplineID string    `json:"discipline_id"`
	GradeLevel   string    `json:"grade_level"`
	Period       int       `json:"period"`
	SkillCode    string    `json:"skill_code"`
	Status       string    `json:"status"`
	ActorID      string    `json:"actor_id"`
	ForkID       string    `json:"fork_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes events on "<prefix>.<type>" subjects.
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// Connect dials the NATS server.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name("curriculum-api"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return conn, nil
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	return newNATSPublisher(conn, prefix)
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "curriculum.proposals"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject returns the subject used for the event type.
func (p *NATSPublisher) Subject(t Type) string {
	return p.prefix + "." + string(t)
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	if err := p.conn.Publish(p.Subject(event.Type), payload); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Type, err)
	}
	return nil
}

const jobType = "proposal_event"

// AsyncPublisher hands events to a worker queue so request handlers never wait on the
// broker. Failed deliveries are retried by the queue.
type AsyncPublisher struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAsyncPublisher builds the queue around the delivering publisher. Call Start before use.
func NewAsyncPublisher(target Publisher, cfg jobs.QueueConfig) *AsyncPublisher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		event, ok := job.Payload.(Event)
		if !ok {
			return nil
		}
		return target.Publish(ctx, event)
	}
	return &AsyncPublisher{queue: jobs.NewQueue("proposal-events", handler, cfg), logger: cfg.Logger}
}

// Start launches the delivery workers.
func (p *AsyncPublisher) Start(ctx context.Context) {
	p.queue.Start(ctx)
}

// Stop drains the workers.
func (p *AsyncPublisher) Stop() {
	p.queue.Stop()
}

// Publish implements Publisher by enqueueing the event.
func (p *AsyncPublisher) Publish(_ context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return p.queue.Enqueue(jobs.Job{ID: event.ID, Type: jobType, Payload: event})
}
