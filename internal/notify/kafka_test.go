package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/mmeshcher/ticketing-settlement/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *stubWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *stubWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishOrderEvent(t *testing.T) {
	w := &stubWriter{}
	p := newPublisher(w, zap.NewNop())

	order := &model.Order{
		ID:            "order-1",
		EventID:       "event-1",
		UserID:        7,
		TotalAmount:   2000,
		PaymentStatus: model.PaymentStatusConfirmed,
		Buyer:         model.Buyer{Email: "ada@example.com"},
	}
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	err := p.PublishOrderEvent(context.Background(), model.NewOrderEvent(model.OrderEventConfirmed, order, at))
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "order-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "order.confirmed", string(msg.Headers[0].Value))

	var got model.OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, model.OrderEventConfirmed, got.Type)
	assert.Equal(t, "ada@example.com", got.BuyerEmail)
	assert.Equal(t, int64(2000), got.TotalAmount)
	assert.True(t, at.Equal(got.OccurredAt))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishOrderEvent_WriterError(t *testing.T) {
	w := &stubWriter{err: errors.New("broker down")}
	p := newPublisher(w, zap.NewNop())

	err := p.PublishOrderEvent(context.Background(), model.OrderEvent{Type: model.OrderEventCreated, OrderID: "order-2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
