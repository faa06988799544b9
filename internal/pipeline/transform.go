package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
	"github.com/couchcryptid/met-diagnostics-etl/internal/observability"
)

// ChartRunner produces the payload for one chart request.
type ChartRunner interface {
	Run(ctx context.Context, req domain.ChartRequest) (domain.ChartPayload, error)
}

// ChartTransformer implements Transformer by running the requested chart
// recipe. Runs failing with a transient source error are retried with
// exponential backoff up to maxAttempts in total.
type ChartTransformer struct {
	runner       ChartRunner
	metrics      *observability.Metrics
	logger       *slog.Logger
	maxAttempts  int
	retryBackoff time.Duration
}

// NewTransformer creates a ChartTransformer.
func NewTransformer(runner ChartRunner, metrics *observability.Metrics, logger *slog.Logger, maxAttempts int) *ChartTransformer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &ChartTransformer{
		runner:       runner,
		metrics:      metrics,
		logger:       logger,
		maxAttempts:  maxAttempts,
		retryBackoff: initialBackoff,
	}
}

func (t *ChartTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	req, err := domain.ParseChartRequest(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	payload, err := t.run(ctx, req)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	return domain.SerializeChartPayload(payload)
}

func (t *ChartTransformer) run(ctx context.Context, req domain.ChartRequest) (domain.ChartPayload, error) {
	backoff := t.retryBackoff
	for attempt := 1; ; attempt++ {
		start := time.Now()
		payload, err := t.runner.Run(ctx, req)
		if err == nil {
			t.metrics.ChartDuration.WithLabelValues(payload.Recipe).Observe(time.Since(start).Seconds())
			return payload, nil
		}
		if !domain.IsRetryable(err) || attempt >= t.maxAttempts {
			return domain.ChartPayload{}, err
		}

		t.logger.Info("chart run hit a transient source error, retrying",
			"request_id", req.ID, "recipe", req.Recipe, "attempt", attempt, "backoff", backoff, "error", err)
		t.metrics.ChartRetries.Inc()
		if !sleepWithContext(ctx, backoff) {
			return domain.ChartPayload{}, ctx.Err()
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}
