package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"sales-realtime-api/internal/model"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, "order-events", zerolog.Nop())

	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	o := &model.Order{ID: "ORD1", UserID: "u1", Status: model.StatusPendingDelivery, ActualAmount: decimal.RequireFromString("12.50")}
	require.NoError(t, p.Publish(context.Background(), FromOrder(OrderPaid, o, at)))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "ORD1", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, "event-type", msg.Headers[0].Key)
	assert.Equal(t, OrderPaid, string(msg.Headers[0].Value))

	var ev OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, 2, ev.Status)
	assert.Equal(t, "PENDING_DELIVERY", ev.StatusName)
	assert.Equal(t, "12.5", ev.Amount)
}

func TestKafkaPublisherError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewKafkaPublisher(w, "order-events", zerolog.Nop())

	err := p.Publish(context.Background(), OrderEvent{Type: OrderCreated, OrderID: "ORD1"})
	assert.ErrorContains(t, err, "broker down")
}
