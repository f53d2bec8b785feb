// Package events announces estimation lifecycle changes to other services.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/damage-estimator/internal/estimate"
	"github.com/example/damage-estimator/internal/logging"
)

// Publisher is notified after records are created or deleted.
type Publisher interface {
	EstimateCreated(ctx context.Context, record *estimate.Record) error
	EstimateDeleted(ctx context.Context, id string) error
}

// Event is the JSON payload published for each change.
type Event struct {
	Type       string    `json:"type"`
	RecordID   string    `json:"record_id"`
	DamageType string    `json:"damage_type,omitempty"`
	Cost       int       `json:"estimated_cost,omitempty"`
	OwnerID    string    `json:"user_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	TypeCreated = "estimate.created"
	TypeDeleted = "estimate.deleted"
)

// Noop discards all events.
type Noop struct{}

func (Noop) EstimateCreated(context.Context, *estimate.Record) error { return nil }
func (Noop) EstimateDeleted(context.Context, string) error           { return nil }

// NATSPublisher publishes events on <subject>.created and <subject>.deleted.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
	now     func() time.Time
}

// ConnectNATS dials the server and returns a publisher on the subject prefix.
func ConnectNATS(url, subject string, logger *zap.Logger) (*NATSPublisher, error) {
	logger = logger.Named("events")
	conn, err := nats.Connect(
		url,
		nats.Name("damage-estimator"),
		nats.Timeout(2*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, logging.NewOperationError("events.connect", "", fmt.Errorf("connect nats: %w", err))
	}
	return &NATSPublisher{conn: conn, subject: subject, logger: logger, now: time.Now}, nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		_ = p.conn.Drain()
	}
}

func (p *NATSPublisher) EstimateCreated(_ context.Context, record *estimate.Record) error {
	return p.publish(createdEvent(record, p.now()))
}

func (p *NATSPublisher) EstimateDeleted(_ context.Context, id string) error {
	return p.publish(Event{Type: TypeDeleted, RecordID: id, OccurredAt: p.now().UTC()})
}

func (p *NATSPublisher) publish(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return logging.NewOperationError("events.encode", ev.RecordID, err)
	}
	if err := p.conn.Publish(Subject(p.subject, ev.Type), data); err != nil {
		return logging.NewOperationError("events.publish", ev.RecordID, err)
	}
	return nil
}

// Subject maps an event type onto the configured prefix.
func Subject(prefix, eventType string) string {
	switch eventType {
	case TypeCreated:
		return prefix + ".created"
	case TypeDeleted:
		return prefix + ".deleted"
	default:
		return prefix
	}
}

func createdEvent(record *estimate.Record, now time.Time) Event {
	return Event{
		Type:       TypeCreated,
		RecordID:   record.ID,
		DamageType: string(record.Category),
		Cost:       record.Cost(),
		OwnerID:    record.OwnerID,
		OccurredAt: now.UTC(),
	}
}
