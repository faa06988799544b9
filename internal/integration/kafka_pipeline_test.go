//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/met-diagnostics-etl/internal/adapter/kafka"
	"github.com/couchcryptid/met-diagnostics-etl/internal/config"
	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
	"github.com/couchcryptid/met-diagnostics-etl/internal/fixture"
	"github.com/couchcryptid/met-diagnostics-etl/internal/observability"
	"github.com/couchcryptid/met-diagnostics-etl/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSourceTopic = "test-chart-requests"
	testSinkTopic   = "test-chart-payloads"
)

// producedMessage holds a deserialized message read from the sink topic.
type producedMessage struct {
	Payload domain.ChartPayload
	Key     string
	Headers map[string]string
}

// readProduced reads a single message from the sink consumer and deserializes it.
func readProduced(ctx context.Context, t *testing.T, consumer *kafkago.Reader) producedMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var payload domain.ChartPayload
	require.NoError(t, json.Unmarshal(msg.Value, &payload), "unmarshal sink message")

	return producedMessage{
		Payload: payload,
		Key:     string(msg.Key),
		Headers: headers,
	}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func publish(ctx context.Context, t *testing.T, broker string, msgs ...kafkago.Message) {
	t.Helper()
	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

func requestMessage(t *testing.T, req domain.ChartRequest) kafkago.Message {
	t.Helper()
	value, err := json.Marshal(req)
	require.NoError(t, err)
	return kafkago.Message{Key: []byte(req.ID), Value: value, Time: fixtureInit}
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader (Extractor)
// and kafka.Writer (Loader) carry one chart request through to its payload.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	req := fixture.Requests(fixtureInit)[1] // qpf_24h
	msg := requestMessage(t, req)
	publish(ctx, t, broker, msg)

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, msg.Key, raw.Key)
	assert.Equal(t, msg.Value, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	transformer := pipeline.NewTransformer(newFixtureRunner(t), observability.NewMetricsForTesting(), discardLogger(), 3)
	out, err := transformer.Transform(ctx, raw)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.OutputEvent{out}))

	pm := readProduced(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, req.ID, pm.Key)
	assert.Equal(t, "qpf_24h", pm.Headers["recipe"])
	assert.Equal(t, "ECMWF", pm.Headers["model"])
	assert.Equal(t, "2018-04-21T08:00:00Z", pm.Headers["valid_time"])
	_, err = time.Parse(time.RFC3339, pm.Headers["produced_at"])
	assert.NoError(t, err, "produced_at should be valid RFC3339")

	rain, ok := pm.Payload.Fields["rain24"]
	require.True(t, ok)
	require.NoError(t, rain.Validate())
	assert.Equal(t, "mm", rain.Unit)
	assert.Equal(t, []float64{0.1, 10, 25, 50, 100, 250}, pm.Payload.Chart.ContourLevels)
}

// TestPipelineEndToEnd wires the full pipeline (Reader → Transformer → Writer)
// with real Kafka and verifies that every sample request yields a payload.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	requests := fixture.Requests(fixtureInit)
	msgs := make([]kafkago.Message, 0, len(requests))
	for _, req := range requests {
		msgs = append(msgs, requestMessage(t, req))
	}
	publish(ctx, t, broker, msgs...)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	transformer := pipeline.NewTransformer(newFixtureRunner(t), metrics, discardLogger(), 3)
	p := pipeline.New(reader, transformer, writer, discardLogger(), metrics, 50, 4)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	received := make(map[string]producedMessage, len(requests))
	for len(received) < len(requests) {
		pm := readProduced(ctx, t, consumer)
		received[pm.Key] = pm
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	for _, req := range requests {
		pm, ok := received[req.ID]
		require.True(t, ok, "no payload for %s", req.ID)
		assert.Equal(t, req.Recipe, pm.Headers["recipe"])
		assert.Equal(t, req.ID, pm.Payload.RequestID)
		for key, f := range pm.Payload.Fields {
			assert.NoError(t, f.Validate(), "%s/%s", req.ID, key)
		}
	}

	compare := received["fixture-cref-compare"].Payload
	assert.Equal(t, "MESO", compare.Model)
	for _, model := range []string{"SHANGHAI", "BEIJING", "GRAPES_MESO", "GRAPES_3KM"} {
		assert.Contains(t, compare.Fields, "cref_"+model)
	}

	stations := received["fixture-stations"].Payload
	t2m := stations.Fields["t2m"]
	st, ok := t2m.Axis(domain.AxisStation)
	require.True(t, ok)
	assert.NotContains(t, st.Labels, "58362", "Shanghai lies outside the default map window")
	assert.Equal(t, "K", t2m.Unit)
	assert.Equal(t, "degC", stations.Fields["t2m_degC"].Unit)
}

// TestPipelineTransformError verifies that a poison pill and a request for an
// unknown recipe are skipped and the pipeline continues with valid messages.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-poison")

	good := fixture.Requests(fixtureInit)[0]
	publish(ctx, t, broker,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{"), Time: fixtureInit},
		requestMessage(t, domain.ChartRequest{ID: "skewt", Recipe: "skewt_logp", InitTime: fixtureInit}),
		requestMessage(t, good),
	)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	transformer := pipeline.NewTransformer(newFixtureRunner(t), metrics, discardLogger(), 3)
	p := pipeline.New(reader, transformer, writer, discardLogger(), metrics, 50, 2)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	pm := readProduced(ctx, t, consumer)
	assert.Equal(t, good.ID, pm.Key)
	assert.Equal(t, "gh500_uv850_mslp", pm.Payload.Recipe)

	// Verify no second message arrives (both bad messages were skipped).
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
