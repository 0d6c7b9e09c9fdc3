package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-inventory-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSink struct{ mock.Mock }

func (m *mockSink) RecordAudit(ctx context.Context, e Entry) (bool, error) {
	args := m.Called(ctx, e)
	return args.Bool(0), args.Error(1)
}

type mockDedup struct{ mock.Mock }

func (m *mockDedup) First(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockDedup) Forget(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func message(t *testing.T, eventID string, orderID int64) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(orders.OrderStatusChangedPayload{OrderID: orderID, From: orders.StatusPending, To: orders.StatusShipped})
	require.NoError(t, err)
	value, err := json.Marshal(orders.Envelope{
		EventID:      eventID,
		EventType:    orders.EventOrderStatusChanged,
		EventVersion: 1,
		OccurredAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Payload:      payload,
	})
	require.NoError(t, err)
	return kafkago.Message{Topic: orders.TopicOrderStatusChanged, Value: value}
}

func TestHandle_RecordsFirstDelivery(t *testing.T) {
	sink := new(mockSink)
	dedup := new(mockDedup)
	h := &Handler{Sink: sink, Dedup: dedup}

	dedup.On("First", mock.Anything, "ev-1").Return(true, nil).Once()
	sink.On("RecordAudit", mock.Anything, mock.MatchedBy(func(e Entry) bool {
		return e.EventID == "ev-1" && e.OrderID == 9 && e.EventType == orders.EventOrderStatusChanged
	})).Return(true, nil).Once()

	require.NoError(t, h.Handle(context.Background(), message(t, "ev-1", 9)))
	sink.AssertExpectations(t)
	dedup.AssertExpectations(t)
}

func TestHandle_SkipsDuplicate(t *testing.T) {
	sink := new(mockSink)
	dedup := new(mockDedup)
	h := &Handler{Sink: sink, Dedup: dedup}

	dedup.On("First", mock.Anything, "ev-1").Return(false, nil).Once()

	require.NoError(t, h.Handle(context.Background(), message(t, "ev-1", 9)))
	sink.AssertNotCalled(t, "RecordAudit", mock.Anything, mock.Anything)
}

func TestHandle_SinkFailureForgetsAndFails(t *testing.T) {
	sink := new(mockSink)
	dedup := new(mockDedup)
	h := &Handler{Sink: sink, Dedup: dedup}
	boom := errors.New("db down")

	dedup.On("First", mock.Anything, "ev-2").Return(true, nil).Once()
	dedup.On("Forget", mock.Anything, "ev-2").Return(nil).Once()
	sink.On("RecordAudit", mock.Anything, mock.Anything).Return(false, boom).Once()

	err := h.Handle(context.Background(), message(t, "ev-2", 3))
	assert.ErrorIs(t, err, boom)
	dedup.AssertExpectations(t)
}

func TestHandle_WithoutDedup(t *testing.T) {
	sink := new(mockSink)
	h := &Handler{Sink: sink}

	sink.On("RecordAudit", mock.Anything, mock.Anything).Return(false, nil).Once()

	require.NoError(t, h.Handle(context.Background(), message(t, "ev-3", 3)))
	sink.AssertExpectations(t)
}

func TestHandle_SkipsMalformed(t *testing.T) {
	sink := new(mockSink)
	h := &Handler{Sink: sink}

	assert.NoError(t, h.Handle(context.Background(), kafkago.Message{Value: []byte("not json")}))
	assert.NoError(t, h.Handle(context.Background(), kafkago.Message{Value: []byte(`{"event_id":"x","payload":{}}`)}))
	sink.AssertNotCalled(t, "RecordAudit", mock.Anything, mock.Anything)
}
