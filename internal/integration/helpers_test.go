//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/met-diagnostics-etl/internal/adapter/cimiss"
	"github.com/couchcryptid/met-diagnostics-etl/internal/adapter/micaps"
	"github.com/couchcryptid/met-diagnostics-etl/internal/catalog"
	"github.com/couchcryptid/met-diagnostics-etl/internal/compose"
	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
	"github.com/couchcryptid/met-diagnostics-etl/internal/fixture"
	"github.com/couchcryptid/met-diagnostics-etl/internal/normalize"
	"github.com/couchcryptid/met-diagnostics-etl/internal/observability"
	"github.com/couchcryptid/met-diagnostics-etl/internal/recipe"
	"github.com/couchcryptid/met-diagnostics-etl/internal/source"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

var fixtureInit = time.Date(2018, time.April, 20, 8, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the test and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("met-diagnostics-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// newFixtureRunner writes a fixture tree, serves it over loopback HTTP and
// returns a runner wired to it through the real connectors.
func newFixtureRunner(t *testing.T) *recipe.Runner {
	t.Helper()
	dir := t.TempDir()
	cat := catalog.Default()
	_, err := fixture.Write(dir, cat, fixtureInit, fixture.ForecastHour)
	require.NoError(t, err)

	srv := httptest.NewServer(fixture.NewServer(dir))
	t.Cleanup(srv.Close)

	logger := discardLogger()
	router := source.NewRouter(cat, observability.NewMetricsForTesting(), logger)
	router.Register(domain.SourceMICAPS, micaps.NewClient(srv.URL+"/micaps", 10*time.Second, 1000, cat, logger))
	router.Register(domain.SourceCIMISS, cimiss.NewClient(srv.URL+"/cimiss", "it", "it", 10*time.Second, 1000, cat, logger))
	return recipe.NewRunner(router, normalize.New(normalize.DefaultUnitTable(), cat), compose.New(), logger)
}
