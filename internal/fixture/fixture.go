// Package fixture generates a deterministic MICAPS data tree and CIMISS
// station records for local runs and end-to-end checks.
package fixture

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/met-diagnostics-etl/internal/catalog"
	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
)

// missing is the MICAPS "no data" value.
const missing = 9999

// Levels are written for every level-dependent product.
var Levels = []float64{500, 700, 850, 925}

// Fixture grid: lon 50..150, lat 0..65 at 2.5 degrees.
const (
	gridLon0 = 50.0
	gridLat0 = 0.0
	gridStep = 2.5
	gridNLon = 41
	gridNLat = 27
)

// Write renders every MICAPS product in cat for one run and forecast hour
// under dir, at DataDir(level)/YYMMDDHH.FFF. It returns the written paths,
// relative to dir and sorted.
func Write(dir string, cat *catalog.Catalog, init time.Time, fhour int) ([]string, error) {
	var written []string
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
				levels = Levels
			}
			for _, level := range levels {
				rel, err := writeGrid(dir, model, name, entry, level, init, fhour)
				if err != nil {
					return nil, err
				}
				written = append(written, rel)
			}
		}
	}
	sort.Strings(written)
	return written, nil
}

func writeGrid(dir, model, variable string, entry catalog.Entry, level float64, init time.Time, fhour int) (string, error) {
	sub, err := entry.DataDir(level)
	if err != nil {
		return "", err
	}
	rel := filepath.Join(filepath.FromSlash(sub), domain.ModelFilename(init, fhour))
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}

	var buf bytes.Buffer
	g := ModelGrid(model, variable, level, init, fhour)
	if err := EncodeDiamond4(&buf, g); err != nil {
		return "", fmt.Errorf("%s %s: %w", model, variable, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return filepath.ToSlash(rel), nil
}

// ModelGrid builds the synthetic field for one product. Values are in the
// unit the default catalog lists for the variable and are rounded to one
// decimal. Every grid holds one missing cell at its south-west corner.
func ModelGrid(model, variable string, level float64, init time.Time, fhour int) Grid {
	g := Grid{
		Description:  fmt.Sprintf("%s %s %s", model, variable, num(level)),
		Init:         init,
		ForecastHour: fhour,
		Level:        level,
		Lon0:         gridLon0,
		Lat0:         gridLat0,
		DLon:         gridStep,
		DLat:         gridStep,
		NLon:         gridNLon,
		NLat:         gridNLat,
		Values:       make([]float64, gridNLon*gridNLat),
	}
	phase := float64(fhour) / 24
	for j := range gridNLat {
		lat := gridLat0 + float64(j)*gridStep
		for i := range gridNLon {
			lon := gridLon0 + float64(i)*gridStep
			v := synthetic(variable, level, lat, lon, phase)
			g.Values[j*gridNLon+i] = math.Round(v*10) / 10
		}
	}
	g.Values[0] = missing
	return g
}

// synthetic is a smooth, plausible value for a variable at one point.
func synthetic(variable string, level, lat, lon, phase float64) float64 {
	wave := math.Sin((lon + 10*phase) * math.Pi / 30)
	switch variable {
	case "hgt": // dagpm
		return standardHeight(level) - 0.4*(lat-30) + 2*wave
	case "u":
		return 8 + 0.3*(lat-20) + 4*wave
	case "v":
		return 6 * math.Cos((lon+10*phase)*math.Pi/30)
	case "tmp": // degC
		return 28 - 0.6*lat - 0.065*(1000-level)*0.8 + wave
	case "rh":
		return 60 + 35*wave
	case "mslp":
		return 1012 + 0.2*(lat-35) - 3*wave
	case "rain24":
		// A rain band along 30N; dry elsewhere.
		return math.Max(0, 60*math.Exp(-math.Pow((lat-30)/4, 2))*(0.5+0.5*wave))
	case "cref":
		// A convective cell near (117, 39) on a 0 dBZ background.
		d := math.Hypot(lon-117, lat-39)
		return math.Max(0, 55-8*d)
	}
	return 0
}

// standardHeight approximates the geopotential height of a pressure level in
// dagpm.
func standardHeight(level float64) float64 {
	if level <= 0 {
		return 0
	}
	return 4433 * (1 - math.Pow(level/1013.25, 0.1903))
}
