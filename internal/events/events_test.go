package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusDeliversByType(t *testing.T) {
	logger := zerolog.New(io.Discard)
	bus := NewEventBus(&logger)

	var got []string
	bus.Subscribe(BookingCreated, func(e Event) error {
		got = append(got, "a:"+e.ID)
		return nil
	})
	bus.Subscribe(BookingCreated, func(e Event) error {
		got = append(got, "b:"+e.ID)
		return errors.New("handler failure does not stop delivery")
	})
	bus.Subscribe(BookingCancelled, func(e Event) error {
		got = append(got, "cancel")
		return nil
	})

	bus.Publish(Event{ID: "1", Type: BookingCreated})
	bus.Publish(Event{ID: "2", Type: SeriesPaused})

	assert.Equal(t, []string{"a:1", "b:1"}, got)
}

func TestNewEventMarshalsPayload(t *testing.T) {
	ev, err := New(SeriesCreated, "t1", map[string]int{"sessions": 6})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "t1", ev.TenantID)
	assert.JSONEq(t, `{"sessions":6}`, string(ev.Payload))
	assert.False(t, ev.CreatedAt.IsZero())

	_, err = New(SeriesCreated, "t1", make(chan int))
	assert.Error(t, err)
}

type fakeChannel struct {
	mu        sync.Mutex
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, exchange+"|"+key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPForwarderPublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	logger := zerolog.New(io.Discard)
	fwd := newForwarder(ch, "salonsched.events", &logger)
	bus := NewEventBus(&logger)
	fwd.Attach(bus)

	ev, err := New(BookingCreated, "t1", map[string]string{"bookingId": "b1"})
	require.NoError(t, err)
	bus.Publish(ev)

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "|salonsched.events", ch.keys[0])
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, ev.ID, msg.MessageId)
	assert.Equal(t, BookingCreated, msg.Type)

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, ev.ID, decoded.ID)
	assert.JSONEq(t, `{"bookingId":"b1"}`, string(decoded.Payload))
}

func TestAMQPForwarderErrors(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	fwd := newForwarder(ch, "q", nil)

	err := fwd.Handle(Event{ID: "1", Type: BookingCancelled})
	assert.ErrorContains(t, err, "publish booking.cancelled")

	require.NoError(t, fwd.Close())
	assert.True(t, ch.closed)
	assert.Error(t, fwd.Handle(Event{ID: "2", Type: BookingCancelled}))
}
