package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types emitted after a successful write.
const (
	BookingCreated       = "booking.created"
	BookingCancelled     = "booking.cancelled"
	BookingRescheduled   = "booking.rescheduled"
	BookingStatusChanged = "booking.status_changed"
	SeriesCreated        = "series.created"
	SeriesPaused         = "series.paused"
	SeriesResumed        = "series.resumed"
	SeriesCancelled      = "series.cancelled"
	SeriesCompleted      = "series.completed"
	BookingReminderDue   = "booking.reminder_due"
)

// AllTypes lists every event type the service emits.
var AllTypes = []string{
	BookingCreated, BookingCancelled, BookingRescheduled, BookingStatusChanged,
	SeriesCreated, SeriesPaused, SeriesResumed, SeriesCancelled, SeriesCompleted,
	BookingReminderDue,
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	TenantID  string          `json:"tenantId"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// New builds an event with a JSON payload.
func New(eventType, tenantID string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TenantID:  tenantID,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// Publisher accepts events for delivery.
type Publisher interface {
	Publish(event Event)
}

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "events").Logger()
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: l}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers handler for every type in AllTypes.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range AllTypes {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type. Handler errors are logged, never returned:
// the write that produced the event has already committed.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Error().Err(err).Str("event_type", event.Type).Str("event_id", event.ID).Msg("event handler failed")
		}
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(Event) {}
