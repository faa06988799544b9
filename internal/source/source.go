// Package source routes fetch requests to the connector registered for the
// requested upstream service.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/couchcryptid/met-diagnostics-etl/internal/catalog"
	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
	"github.com/couchcryptid/met-diagnostics-etl/internal/observability"
)

// Connector issues one outbound request per Fetch and returns the raw payload.
// Implementations never cache and never retry.
type Connector interface {
	Fetch(ctx context.Context, spec domain.RequestSpec) (domain.RawResponse, error)
}

// Router validates requests and dispatches them by RequestSpec.Source.
type Router struct {
	connectors map[string]Connector
	catalog    *catalog.Catalog
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewRouter creates a Router with no connectors registered.
func NewRouter(cat *catalog.Catalog, metrics *observability.Metrics, logger *slog.Logger) *Router {
	return &Router{
		connectors: make(map[string]Connector),
		catalog:    cat,
		metrics:    metrics,
		logger:     logger,
	}
}

// Register binds a connector to a source name, replacing any previous one.
func (r *Router) Register(name string, c Connector) {
	r.connectors[name] = c
}

// Sources lists the registered source names.
func (r *Router) Sources() []string {
	names := make([]string, 0, len(r.connectors))
	for n := range r.connectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Fetch validates the request against the selector rules and the catalog, then
// delegates to the source's connector. Invalid requests never reach the network.
func (r *Router) Fetch(ctx context.Context, spec domain.RequestSpec) (domain.RawResponse, error) {
	if err := spec.Validate(); err != nil {
		return domain.RawResponse{}, fmt.Errorf("fetch %s: %w", spec, err)
	}
	c, ok := r.connectors[spec.Source]
	if !ok {
		return domain.RawResponse{}, fmt.Errorf("fetch %s: %w: no connector for source %q",
			spec, domain.ErrUnsupportedVariable, spec.Source)
	}
	entry, err := r.catalog.Lookup(spec.Source, spec.Model, spec.Variable)
	if err != nil {
		return domain.RawResponse{}, fmt.Errorf("fetch %s: %w", spec, err)
	}
	if entry.RequiresLevel() && len(spec.Levels) != 1 {
		return domain.RawResponse{}, fmt.Errorf("fetch %s: %w: exactly one level required, got %d",
			spec, domain.ErrInvalidSelector, len(spec.Levels))
	}

	start := time.Now()
	raw, err := c.Fetch(ctx, spec)
	r.metrics.SourceFetchDuration.WithLabelValues(spec.Source).Observe(time.Since(start).Seconds())
	r.metrics.SourceFetches.WithLabelValues(spec.Source, domain.ErrorKind(err)).Inc()
	if err != nil {
		r.logger.Warn("source fetch failed", "source", spec.Source, "request", spec.String(), "error", err)
		return domain.RawResponse{}, err
	}
	r.logger.Debug("source fetch complete", "source", spec.Source, "request", spec.String(),
		"bytes", len(raw.Body), "duration", time.Since(start))
	return raw, nil
}
