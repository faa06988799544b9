package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Lookup(t *testing.T) {
	c := Default()

	e, err := c.Lookup(domain.SourceMICAPS, "ecmwf", "HGT")
	require.NoError(t, err)
	dir, err := e.DataDir(500)
	require.NoError(t, err)
	assert.Equal(t, "ECMWF_LR/HGT/500", dir)
	assert.Equal(t, "dagpm", e.Unit)

	e, err = c.Lookup(domain.SourceMICAPS, "ECMWF", "rain24")
	require.NoError(t, err)
	dir, err = e.DataDir(0)
	require.NoError(t, err)
	assert.Equal(t, "ECMWF_HR/RAIN24", dir)

	e, err = c.Lookup(domain.SourceMICAPS, "BEIJING", "cref")
	require.NoError(t, err)
	assert.Equal(t, "BEIJING_MR/COMPOSITE_REFLECTIVITY/ENTIRE_ATMOSPHERE", e.Path)
	require.NotNil(t, e.ValidMin)
	assert.Equal(t, 10.0, *e.ValidMin)

	e, err = c.Lookup(domain.SourceCIMISS, "", "tem")
	require.NoError(t, err)
	assert.Equal(t, "TEM", e.Element)
}

func TestLookup_Unsupported(t *testing.T) {
	c := Default()

	_, err := c.Lookup("grib", "ECMWF", "hgt")
	require.ErrorIs(t, err, domain.ErrUnsupportedVariable)

	_, err = c.Lookup(domain.SourceMICAPS, "JMA", "hgt")
	require.ErrorIs(t, err, domain.ErrUnsupportedVariable)

	_, err = c.Lookup(domain.SourceMICAPS, "ECMWF", "vorticity")
	require.ErrorIs(t, err, domain.ErrUnsupportedVariable)
}

func TestDataDir_MissingLevel(t *testing.T) {
	e := Entry{Path: "ECMWF_LR/HGT/{level}", Unit: "dagpm"}
	_, err := e.DataDir(0)
	require.ErrorIs(t, err, domain.ErrInvalidSelector)

	dir, err := e.DataDir(925)
	require.NoError(t, err)
	assert.Equal(t, "ECMWF_LR/HGT/925", dir)
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  micaps:
    jma:
      hgt: {path: "JMA_GSM/HGT/{level}", unit: gpm}
    ecmwf:
      hgt: {path: "ECMWF_HR/HGT/{level}", unit: gpm}
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	e, err := c.Lookup(domain.SourceMICAPS, "JMA", "hgt")
	require.NoError(t, err)
	assert.Equal(t, "gpm", e.Unit)

	e, err = c.Lookup(domain.SourceMICAPS, "ECMWF", "hgt")
	require.NoError(t, err)
	assert.Equal(t, "ECMWF_HR/HGT/{level}", e.Path)

	_, err = c.Lookup(domain.SourceMICAPS, "ECMWF", "mslp")
	require.NoError(t, err, "defaults survive the merge")

	assert.Contains(t, c.Models(domain.SourceMICAPS), "JMA")
}

func TestParse_RejectsEntryWithoutUnit(t *testing.T) {
	_, err := Parse([]byte("sources: {micaps: {x: {hgt: {path: a}}}}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no unit")
}
