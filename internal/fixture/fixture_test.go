package fixture_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInit = time.Date(2018, 4, 20, 8, 0, 0, 0, time.UTC)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncodeDiamond4_NormalizesBack(t *testing.T) {
	g := fixture.ModelGrid("ECMWF", "hgt", 500, testInit, fixture.ForecastHour)
	var buf bytes.Buffer
	require.NoError(t, fixture.EncodeDiamond4(&buf, g))
	assert.Contains(t, buf.String(), "diamond 4 ECMWF hgt 500\n18 4 20 8 24 500\n")

	n := normalize.New(normalize.DefaultUnitTable(), catalog.Default())
	f, err := n.Normalize(domain.RawResponse{
		Source:   domain.SourceMICAPS,
		Format:   domain.FormatMICAPS4,
		Model:    "ECMWF",
		Variable: "hgt",
		Level:    500,
		Body:     buf.Bytes(),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1, g.NLat, g.NLon}, f.Shape())
	assert.Equal(t, "m", f.Unit)
	assert.True(t, f.Mask[0], "south-west corner is missing")
	assert.Equal(t, 1, f.MaskedCount())
	assert.InDelta(t, g.Values[1]*10, f.Data[1], 1e-6)
	assert.InDelta(t, g.Values[len(g.Values)-1]*10, f.Data[len(f.Data)-1], 1e-6)

	valid := testInit.Add(fixture.ForecastHour * time.Hour)
	tm, _ := f.Axis(domain.AxisTime)
	assert.Equal(t, []float64{float64(valid.Unix())}, tm.Values)
}

func TestEncodeDiamond4_RejectsShortValues(t *testing.T) {
	g := fixture.ModelGrid("ECMWF", "u", 850, testInit, 0)
	g.Values = g.Values[1:]
	require.Error(t, fixture.EncodeDiamond4(io.Discard, g))
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	paths, err := fixture.Write(dir, catalog.Default(), testInit, fixture.ForecastHour)
	require.NoError(t, err)

	assert.Contains(t, paths, "ECMWF_LR/HGT/500/18042008.024")
	assert.Contains(t, paths, "ECMWF_LR/PRMSL/18042008.024")
	assert.Contains(t, paths, "ECMWF_HR/RAIN24/18042008.024")
	assert.Contains(t, paths, "BEIJING_MR/COMPOSITE_REFLECTIVITY/ENTIRE_ATMOSPHERE/18042008.024")
	assert.IsIncreasing(t, paths)

	for _, p := range paths {
		_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p)))
		require.NoError(t, err, p)
	}
}

func TestStationRecords(t *testing.T) {
	body, err := fixture.StationRecords("TEM", []string{"54511", "53698"}, testInit, testInit.Add(time.Hour))
	require.NoError(t, err)

	n := normalize.New(normalize.DefaultUnitTable(), catalog.Default())
	f, err := n.Normalize(domain.RawResponse{
		Source:   domain.SourceCIMISS,
		Format:   domain.FormatCIMISSJSON,
		Variable: "tem",
		Body:     body,
	}, normalize.ShapeHint{domain.AxisStation: 2})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 1, 2}, f.Shape())
	st, _ := f.Axis(domain.AxisStation)
	assert.Equal(t, []string{"54511", "53698"}, st.Labels)
	assert.Equal(t, 1, f.MaskedCount(), "quiet station misses its first hour")
	assert.True(t, f.Mask[1])

	_, err = fixture.StationRecords("TEM", nil, testInit, testInit.Add(-time.Hour))
	require.Error(t, err)
}

// TestRecipes_EndToEnd runs every built-in recipe against a fixture tree
// served over loopback HTTP.
func TestRecipes_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	cat := catalog.Default()
	_, err := fixture.Write(dir, cat, testInit, fixture.ForecastHour)
	require.NoError(t, err)

	srv := httptest.NewServer(fixture.NewServer(dir))
	defer srv.Close()

	logger := discard()
	router := source.NewRouter(cat, observability.NewMetricsForTesting(), logger)
	router.Register(domain.SourceMICAPS, micaps.NewClient(srv.URL+"/micaps", 5*time.Second, 1000, cat, logger))
	router.Register(domain.SourceCIMISS, cimiss.NewClient(srv.URL+"/cimiss", "user", "secret", 5*time.Second, 1000, cat, logger))
	runner := recipe.NewRunner(router, normalize.New(normalize.DefaultUnitTable(), cat), compose.New(), logger)

	for _, req := range fixture.Requests(testInit) {
		t.Run(req.Recipe, func(t *testing.T) {
			p, err := runner.Run(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, req.ID, p.RequestID)
			assert.NotEmpty(t, p.Fields)
			for key, f := range p.Fields {
				require.NoError(t, f.Validate(), key)
				assert.Less(t, f.MaskedCount(), f.Size(), "%s is entirely masked", key)
			}
		})
	}
}
