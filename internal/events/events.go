package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	OccupancyStarted     = "occupancy.started"
	OccupancyFinished    = "occupancy.finished"
	RatingChanged        = "rating.changed"
	SubscriptionExpiring = "subscription.expiring"
	SubscriptionExpired  = "subscription.expired"
)

// Event is the single message shape on the queue; fields not relevant to a type are omitted.
type Event struct {
	Type           string `json:"type"`
	LotID          int    `json:"lot_id"`
	LotName        string `json:"lot_name,omitempty"`
	OccupancyID    int    `json:"occupancy_id,omitempty"`
	Ticket         string `json:"ticket,omitempty"`
	VehiclePlate   string `json:"vehicle_plate,omitempty"`
	SpaceCode      string `json:"space_code,omitempty"`
	EnteredAt      string `json:"entered_at,omitempty"`
	ExitedAt       string `json:"exited_at,omitempty"`
	Amount         string `json:"amount,omitempty"`
	Method         string `json:"method,omitempty"`
	SubscriptionID int    `json:"subscription_id,omitempty"`
	EndsAt         string `json:"ends_at,omitempty"`
	DriverName     string `json:"driver_name,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	RatingAvg      string `json:"rating_avg,omitempty"`
	RatingCount    int    `json:"rating_count,omitempty"`
	Ts             string `json:"ts"`
}

func New(eventType string, lotID int) Event {
	return Event{Type: eventType, LotID: lotID, Ts: time.Now().UTC().Format(time.RFC3339)}
}

func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func Decode(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return e, fmt.Errorf("failed to decode event: %w", err)
	}
	if e.Type == "" {
		return e, fmt.Errorf("event without type")
	}
	return e, nil
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// QueuePublisher publishes JSON events to a RabbitMQ queue.
type QueuePublisher struct {
	q *RMQueue
}

func NewQueuePublisher(q *RMQueue) *QueuePublisher {
	return &QueuePublisher{q: q}
}

func (p *QueuePublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.q.Publish(ctx, body); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}
	return nil
}

// LogPublisher only logs; used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, e Event) error {
	log.WithFields(log.Fields{"type": e.Type, "lot_id": e.LotID}).Debug("event dropped, no broker configured")
	return nil
}

// Emit publishes and logs failures. Events never fail the operation that produced them.
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		log.WithError(err).WithField("type", e.Type).Warn("failed to publish event")
	}
}
