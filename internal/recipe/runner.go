// Package recipe turns chart requests into chart payloads by fetching,
// normalizing and composing the fields each chart needs.
package recipe

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/met-diagnostics-etl/internal/compose"
	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
	"github.com/couchcryptid/met-diagnostics-etl/internal/normalize"
)

// Fetcher retrieves one raw field.
type Fetcher interface {
	Fetch(ctx context.Context, spec domain.RequestSpec) (domain.RawResponse, error)
}

// Normalizer decodes a raw field into canonical form.
type Normalizer interface {
	Normalize(raw domain.RawResponse, hint normalize.ShapeHint) (domain.Field, error)
}

// Composer derives a field from other fields.
type Composer interface {
	Compose(op string, inputs []domain.Field, p compose.Params) (domain.Field, error)
}

// Recipe describes one chart. Build fills Title, Fields and Chart; the
// runner stamps the identifying and timing fields.
type Recipe struct {
	Name         string
	Models       []string
	DefaultModel string
	Build        func(ctx context.Context, r *Run) (domain.ChartPayload, error)
}

// Runner executes recipes. Each Run call owns all of its intermediate
// values, so a Runner may serve concurrent runs.
type Runner struct {
	fetcher  Fetcher
	norm     Normalizer
	composer Composer
	recipes  map[string]Recipe
	logger   *slog.Logger
}

// NewRunner creates a Runner with the built-in recipes registered.
func NewRunner(f Fetcher, n Normalizer, c Composer, logger *slog.Logger) *Runner {
	r := &Runner{fetcher: f, norm: n, composer: c, recipes: map[string]Recipe{}, logger: logger}
	for _, rc := range builtin() {
		r.Register(rc)
	}
	return r
}

// Register adds or replaces a recipe.
func (r *Runner) Register(rc Recipe) {
	r.recipes[strings.ToLower(rc.Name)] = rc
}

// Recipes lists the registered recipe names, sorted.
func (r *Runner) Recipes() []string {
	names := make([]string, 0, len(r.recipes))
	for n := range r.recipes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run produces the payload for one request. The first failing step aborts
// the run and no payload is returned.
func (r *Runner) Run(ctx context.Context, req domain.ChartRequest) (domain.ChartPayload, error) {
	rc, ok := r.recipes[strings.ToLower(req.Recipe)]
	if !ok {
		return domain.ChartPayload{}, fmt.Errorf("%w: unknown recipe %q", domain.ErrUnsupportedVariable, req.Recipe)
	}
	model := strings.ToUpper(strings.TrimSpace(req.Model))
	if model == "" {
		model = rc.DefaultModel
	}
	if len(rc.Models) > 0 && !slices.Contains(rc.Models, model) {
		return domain.ChartPayload{}, fmt.Errorf("%w: recipe %s supports models %v, not %q",
			domain.ErrUnsupportedVariable, rc.Name, rc.Models, req.Model)
	}

	run := &Run{runner: r, Request: req, Model: model}
	start := time.Now()
	p, err := rc.Build(ctx, run)
	if err != nil {
		return domain.ChartPayload{}, fmt.Errorf("recipe %s: %w", rc.Name, err)
	}

	p.RequestID = req.ID
	p.Recipe = rc.Name
	if p.Model == "" {
		p.Model = model
	}
	p.InitTime = req.InitTime
	p.ForecastHour = req.ForecastHour
	if p.ValidTime.IsZero() {
		p.ValidTime = req.InitTime.Add(time.Duration(req.ForecastHour) * time.Hour)
	}
	p.ProducedAt = domain.Now()

	r.logger.Debug("chart run complete", "recipe", rc.Name, "model", p.Model,
		"fields", len(p.Fields), "duration", time.Since(start))
	return p, nil
}

// Run carries one request through its recipe.
type Run struct {
	runner  *Runner
	Request domain.ChartRequest
	Model   string
}

// Grid fetches and normalizes one model field for the request's run.
func (r *Run) Grid(ctx context.Context, model, variable string, level float64, extent domain.Extent) (domain.Field, error) {
	spec := domain.NewGridRequest(domain.SourceMICAPS, model, variable, level, r.Request.InitTime, r.Request.ForecastHour, extent)
	return r.fetch(ctx, spec, nil)
}

// Stations fetches and normalizes station observations.
func (r *Run) Stations(ctx context.Context, variable string, stations []string, start, end time.Time, extent domain.Extent) (domain.Field, error) {
	spec := domain.NewStationRequest(domain.SourceCIMISS, variable, stations, start, end)
	spec.Extent = extent
	return r.fetch(ctx, spec, normalize.ShapeHint{domain.AxisStation: 0})
}

func (r *Run) fetch(ctx context.Context, spec domain.RequestSpec, hint normalize.ShapeHint) (domain.Field, error) {
	if err := ctx.Err(); err != nil {
		return domain.Field{}, err
	}
	raw, err := r.runner.fetcher.Fetch(ctx, spec)
	if err != nil {
		return domain.Field{}, err
	}
	f, err := r.runner.norm.Normalize(raw, hint)
	if err != nil {
		return domain.Field{}, err
	}
	r.runner.logger.Debug("field ready", "request", spec.String(), "shape", f.Shape(), "masked", f.MaskedCount())
	return f, nil
}

// Compose derives a field.
func (r *Run) Compose(op string, p compose.Params, inputs ...domain.Field) (domain.Field, error) {
	return r.runner.composer.Compose(op, inputs, p)
}

// Subset crops each field to the extent.
func (r *Run) Subset(ext domain.Extent, fields ...domain.Field) ([]domain.Field, error) {
	p := compose.Params{"lon_min": ext.LonMin, "lon_max": ext.LonMax, "lat_min": ext.LatMin, "lat_max": ext.LatMax}
	out := make([]domain.Field, len(fields))
	for i, f := range fields {
		var err error
		if out[i], err = r.Compose(compose.OpSubset, p, f); err != nil {
			return nil, err
		}
	}
	return out, nil
}
