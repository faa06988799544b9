package kafka

import (
	"testing"
	"time"

	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("key-1"),
		Value:     []byte(`{"recipe":"qpf_24h"}`),
		Topic:     "chart-requests",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("forecaster-desk")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("key-1"), raw.Key)
	assert.JSONEq(t, `{"recipe":"qpf_24h"}`, string(raw.Value))
	assert.Equal(t, "chart-requests", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "forecaster-desk", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestToMessage(t *testing.T) {
	validTime := time.Date(2018, 4, 21, 8, 0, 0, 0, time.UTC)
	out, err := domain.SerializeChartPayload(domain.ChartPayload{
		RequestID:  "req-1",
		Recipe:     "qpf_24h",
		Model:      "ECMWF",
		ValidTime:  validTime,
		ProducedAt: validTime,
	})
	require.NoError(t, err)

	msg := toMessage(out)

	assert.Equal(t, []byte("req-1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"recipe":"qpf_24h"`)
	require.Len(t, msg.Headers, 4)
	keys := make([]string, len(msg.Headers))
	for i, h := range msg.Headers {
		keys[i] = h.Key
	}
	assert.Equal(t, []string{"model", "produced_at", "recipe", "valid_time"}, keys)
	assert.Equal(t, []byte(validTime.Format(time.RFC3339)), msg.Headers[3].Value)
}
