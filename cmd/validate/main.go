// Command validate checks a fixture tree written by genfixture end to end:
// every grid decodes, every sample request produces a payload through the
// real connectors over loopback HTTP, and every payload keeps the field
// conventions the renderer relies on.
//
// Usage:
//
//	go run ./cmd/validate --dir data/fixture
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sort"
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
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

// producedAt pins payload timestamps so repeated runs compare equal.
var producedAt = time.Date(2018, time.April, 20, 9, 0, 0, 0, time.UTC)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	var dir, catalogPath string
	cmd := &cobra.Command{
		Use:           "validate",
		Short:         "Validate a fixture tree end to end",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, _ []string) {
			if code := run(cmd.OutOrStdout(), dir, catalogPath); code != 0 {
				os.Exit(code)
			}
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "data/fixture", "fixture directory written by genfixture")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "catalog YAML merged over the defaults")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(out io.Writer, dir, catalogPath string) int {
	domain.SetClock(clockwork.NewFakeClockAt(producedAt))
	defer domain.SetClock(nil)

	fmt.Fprintln(out, "=== Chart Fixture Validation ===")
	fmt.Fprintln(out)

	cat := catalog.Default()
	if catalogPath != "" {
		var err error
		if cat, err = catalog.Load(catalogPath); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			return 1
		}
	}
	requests, err := loadJSON[domain.ChartRequest](filepath.Join(dir, "requests.json"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load requests: %v\n", err)
		return 1
	}
	if len(requests) == 0 {
		fmt.Fprintln(os.Stderr, "FATAL: no requests in fixture")
		return 1
	}

	norm := normalize.New(normalize.DefaultUnitTable(), cat)
	decodePhase, grids := validateGrids(dir, cat, norm, requests[0].InitTime, requests[0].ForecastHour)
	runPhase, payloads := validateRuns(dir, cat, norm, requests)
	phases := []*phase{
		decodePhase,
		runPhase,
		validatePayloads(requests, payloads),
	}

	fmt.Fprintln(out)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Grids: %d decoded, Requests: %d, Payloads: %d\n", grids, len(requests), len(payloads))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ── Phase 1: Grid Decoding ──
// Every catalogued MICAPS product for the run decodes into a canonical field.

func validateGrids(dir string, cat *catalog.Catalog, norm *normalize.Normalizer, init time.Time, fhour int) (*phase, int) {
	p := &phase{name: "Phase 1: Grid Decoding (MICAPS files)"}
	decoded := 0
	for _, model := range cat.Models(domain.SourceMICAPS) {
		vars := cat.Sources[domain.SourceMICAPS][model]
		names := make([]string, 0, len(vars))
		for name := range vars {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			entry := vars[name]
			levels := []float64{0}
			if entry.RequiresLevel() {
				levels = fixture.Levels
			}
			for _, level := range levels {
				sub, err := entry.DataDir(level)
				if err != nil {
					p.errorf("%s/%s: %v", model, name, err)
					continue
				}
				path := filepath.Join(dir, filepath.FromSlash(sub), domain.ModelFilename(init, fhour))
				body, err := os.ReadFile(path)
				if err != nil {
					p.errorf("%s/%s: %v", model, name, err)
					continue
				}
				f, err := norm.Normalize(domain.RawResponse{
					Source:   domain.SourceMICAPS,
					Format:   domain.FormatMICAPS4,
					Model:    model,
					Variable: name,
					Level:    level,
					Body:     body,
				}, nil)
				if err != nil {
					p.errorf("%s: %v", path, err)
					continue
				}
				if f.MaskedCount() == f.Size() {
					p.errorf("%s: every value is masked", path)
				}
				decoded++
			}
		}
	}
	return p, decoded
}

// ── Phase 2: Chart Runs ──
// Every sample request runs through the real connectors against the fixture
// served over loopback HTTP.

func validateRuns(dir string, cat *catalog.Catalog, norm *normalize.Normalizer, requests []domain.ChartRequest) (*phase, map[string]domain.ChartPayload) {
	p := &phase{name: "Phase 2: Chart Runs (loopback HTTP)"}

	srv := httptest.NewServer(fixture.NewServer(dir))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := source.NewRouter(cat, observability.NewMetricsForTesting(), logger)
	router.Register(domain.SourceMICAPS, micaps.NewClient(srv.URL+"/micaps", 10*time.Second, 1000, cat, logger))
	router.Register(domain.SourceCIMISS, cimiss.NewClient(srv.URL+"/cimiss", "fixture", "fixture", 10*time.Second, 1000, cat, logger))
	runner := recipe.NewRunner(router, norm, compose.New(), logger)

	payloads := make(map[string]domain.ChartPayload, len(requests))
	for _, req := range requests {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		payload, err := runner.Run(ctx, req)
		cancel()
		if err != nil {
			p.errorf("%s (%s): %s: %v", req.ID, req.Recipe, domain.ErrorKind(err), err)
			continue
		}
		payloads[req.ID] = payload
	}
	return p, payloads
}

// ── Phase 3: Payload Invariants ──
// Fields keep canonical axes, ascending coordinates, zeroed masked cells and
// survive a JSON round trip.

func validatePayloads(requests []domain.ChartRequest, payloads map[string]domain.ChartPayload) *phase {
	p := &phase{name: "Phase 3: Payload Invariants"}
	for _, req := range requests {
		payload, ok := payloads[req.ID]
		if !ok {
			continue
		}
		if payload.RequestID != req.ID {
			p.errorf("%s: request id %q", req.ID, payload.RequestID)
		}
		if !payload.ProducedAt.Equal(producedAt) {
			p.errorf("%s: produced_at %s, want %s", req.ID, payload.ProducedAt, producedAt)
		}
		if len(payload.Fields) == 0 {
			p.errorf("%s: no fields", req.ID)
		}
		for key, f := range payload.Fields {
			checkField(p, req.ID+"/"+key, f)
		}

		data, err := json.Marshal(payload)
		if err != nil {
			p.errorf("%s: marshal: %v", req.ID, err)
			continue
		}
		var back domain.ChartPayload
		if err := json.Unmarshal(data, &back); err != nil {
			p.errorf("%s: unmarshal: %v", req.ID, err)
			continue
		}
		if len(back.Fields) != len(payload.Fields) {
			p.errorf("%s: %d fields after round trip, want %d", req.ID, len(back.Fields), len(payload.Fields))
		}
	}
	return p
}

func checkField(p *phase, id string, f domain.Field) {
	if err := f.Validate(); err != nil {
		p.errorf("%s: %v", id, err)
		return
	}
	names := make([]string, len(f.Axes))
	for i, a := range f.Axes {
		names[i] = a.Name
	}
	want := domain.CanonicalGridOrder
	if f.IsPoint() {
		want = domain.CanonicalPointOrder
	}
	if !slices.Equal(names, want) {
		p.errorf("%s: axes %v, want %v", id, names, want)
	}
	for _, name := range []string{domain.AxisLatitude, domain.AxisLongitude} {
		if a, ok := f.Axis(name); ok && !slices.IsSorted(a.Values) {
			p.errorf("%s: %s not ascending", id, name)
		}
	}
	for i, m := range f.Mask {
		if m && f.Data[i] != 0 {
			p.errorf("%s: masked cell %d holds %v", id, i, f.Data[i])
			break
		}
	}
	if f.MaskedCount() == f.Size() {
		p.errorf("%s: every value is masked", id)
	}
}
