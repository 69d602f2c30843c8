package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaPublisher(w, zap.NewNop())

	ev := usecase.OrderEvent{
		Kind:        model.NotificationOrderPaid,
		UserID:      3,
		OrderID:     42,
		OrderNumber: "A1B2C3D4E5",
		Status:      model.OrderStatusPending,
		IsPaid:      true,
		GrandTotal:  decimal.RequireFromString("35.00"),
		OccurredAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), ev))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "42", string(w.msgs[0].Key))
	assert.Equal(t, "ORDER_PAID", string(w.msgs[0].Headers[0].Value))

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "ORDER_PAID", got["kind"])
	assert.Equal(t, "A1B2C3D4E5", got["order_number"])
	assert.Equal(t, "35", got["grand_total"])
	assert.Equal(t, true, got["is_paid"])
}

func TestKafkaPublisher_NoEventsNoWrite(t *testing.T) {
	w := &recordingWriter{err: errors.New("should not be called")}
	p := NewKafkaPublisher(w, zap.NewNop())

	require.NoError(t, p.Publish(context.Background()))
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := NewKafkaPublisher(w, zap.NewNop())

	err := p.Publish(context.Background(), usecase.OrderEvent{OrderID: 1, Kind: model.NotificationOrderPlaced})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
