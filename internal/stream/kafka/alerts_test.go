package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movilityai/tripplanner/internal/lib/alerts"
)

// fakeReader replays queued messages then reports the final error
type fakeReader struct {
	messages []kafka.Message
	final    error
	closed   bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.messages) == 0 {
		return kafka.Message{}, r.final
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

var published = time.Date(2025, 3, 12, 7, 0, 0, 0, time.UTC)

func message(t *testing.T, key string, event AlertEvent) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Topic: "traffic-alerts", Key: []byte(key), Value: value, Time: published}
}

func TestRun_BuildsSnapshot(t *testing.T) {
	reader := &fakeReader{final: context.Canceled}
	reader.messages = []kafka.Message{
		message(t, "a1", AlertEvent{Action: ActionUpsert, Alert: alerts.Alert{
			Description: "Choque en la Autopista Norte", Type: alerts.TypeAccident,
			Severity: alerts.SeverityHigh, IsActive: true,
		}}),
		message(t, "a2", AlertEvent{Alert: alerts.Alert{
			ID: "a2", Description: "Obras en la 33", Type: alerts.TypeConstruction,
			Severity: alerts.SeverityLow, Source: "operator", IsActive: true,
			Timestamp: published.Add(10 * time.Minute),
		}}),
		{Topic: "traffic-alerts", Value: []byte("not json")},
		message(t, "a3", AlertEvent{Alert: alerts.Alert{ID: "a3", Description: "Cerrada", IsActive: true}}),
		message(t, "a3", AlertEvent{Action: ActionResolve, Alert: alerts.Alert{ID: "a3"}}),
	}

	stream := NewAlertStreamWithReader(reader, 0)
	require.NoError(t, stream.Run(context.Background()))
	assert.True(t, reader.closed)

	got, err := stream.ActiveAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "a2", got[0].ID, "newest first")
	assert.Equal(t, "operator", got[0].Source)

	assert.Equal(t, "a1", got[1].ID, "key stands in for a missing id")
	assert.Equal(t, published, got[1].Timestamp)
	assert.Equal(t, "kafka:traffic-alerts", got[1].Source)
}

func TestRun_ReaderFailure(t *testing.T) {
	reader := &fakeReader{final: errors.New("broker unreachable")}
	err := NewAlertStreamWithReader(reader, 0).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read alert message: broker unreachable")
	assert.True(t, reader.closed)
}

func TestApply(t *testing.T) {
	stream := NewAlertStreamWithReader(&fakeReader{}, 0)

	err := stream.Apply(kafka.Message{Value: []byte(`{"alert":{"description":"x"}}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no id")

	err = stream.Apply(message(t, "a1", AlertEvent{Action: "archive", Alert: alerts.Alert{ID: "a1"}}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown alert action "archive"`)

	require.NoError(t, stream.Apply(message(t, "a1", AlertEvent{Alert: alerts.Alert{ID: "a1", IsActive: true}})))
	require.NoError(t, stream.Apply(message(t, "a1", AlertEvent{Alert: alerts.Alert{ID: "a1", IsActive: false}})))
	got, _ := stream.ActiveAlerts(context.Background())
	assert.Empty(t, got, "an inactive upsert removes the alert")
}

func TestActiveAlerts_MaxAge(t *testing.T) {
	stream := NewAlertStreamWithReader(&fakeReader{}, time.Hour)
	stream.now = func() time.Time { return published.Add(90 * time.Minute) }

	require.NoError(t, stream.Apply(message(t, "old", AlertEvent{Alert: alerts.Alert{ID: "old", IsActive: true}})))
	require.NoError(t, stream.Apply(message(t, "new", AlertEvent{Alert: alerts.Alert{
		ID: "new", IsActive: true, Timestamp: published.Add(80 * time.Minute),
	}})))

	got, err := stream.ActiveAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}
