// Package catalog maps (source, model, variable) triples to the upstream
// location of the data and the unit it arrives in.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
	"gopkg.in/yaml.v3"
)

// Entry describes one upstream product.
type Entry struct {
	// Path is the MICAPS directory template; "{level}" is replaced by the
	// requested level, e.g. "ECMWF_LR/HGT/{level}".
	Path string `yaml:"path,omitempty"`
	// DataCode and Element address a CIMISS product.
	DataCode string `yaml:"data_code,omitempty"`
	Element  string `yaml:"element,omitempty"`
	// Unit is the unit the source delivers values in.
	Unit string `yaml:"unit"`
	// ValidMin and ValidMax bound physically meaningful values; values
	// outside are masked by the normalizer.
	ValidMin *float64 `yaml:"valid_min,omitempty"`
	ValidMax *float64 `yaml:"valid_max,omitempty"`
}

// RequiresLevel reports whether the entry's path is level dependent.
func (e Entry) RequiresLevel() bool {
	return strings.Contains(e.Path, "{level}")
}

// Catalog holds the entries for every source.
type Catalog struct {
	// Sources maps source → model → variable → entry. CIMISS uses the
	// empty model key.
	Sources map[string]map[string]map[string]Entry `yaml:"sources"`
}

// Lookup resolves a request to its catalog entry. Model names are matched
// case-insensitively.
func (c *Catalog) Lookup(source, model, variable string) (Entry, error) {
	models, ok := c.Sources[source]
	if !ok {
		return Entry{}, fmt.Errorf("%w: unknown source %q", domain.ErrUnsupportedVariable, source)
	}
	vars, ok := models[strings.ToUpper(strings.TrimSpace(model))]
	if !ok {
		return Entry{}, fmt.Errorf("%w: unknown model %q for %s", domain.ErrUnsupportedVariable, model, source)
	}
	e, ok := vars[strings.ToLower(variable)]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q not available from %s %s", domain.ErrUnsupportedVariable, variable, source, model)
	}
	return e, nil
}

// DataDir renders the MICAPS directory for a level.
func (e Entry) DataDir(level float64) (string, error) {
	if !e.RequiresLevel() {
		return e.Path, nil
	}
	if level == 0 {
		return "", fmt.Errorf("%w: %s needs a vertical level", domain.ErrInvalidSelector, e.Path)
	}
	return strings.ReplaceAll(e.Path, "{level}", strconv.FormatFloat(level, 'f', -1, 64)), nil
}

// Models lists the models known for a source, sorted.
func (c *Catalog) Models(source string) []string {
	names := make([]string, 0, len(c.Sources[source]))
	for m := range c.Sources[source] {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}

// Load reads a YAML catalog file. Entries in the file are merged over the
// defaults, so a file only needs to list additions and overrides.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML catalog data merged over the defaults.
func Parse(data []byte) (*Catalog, error) {
	var file Catalog
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := Default()
	for source, models := range file.Sources {
		if c.Sources[source] == nil {
			c.Sources[source] = map[string]map[string]Entry{}
		}
		for model, vars := range models {
			key := strings.ToUpper(model)
			if c.Sources[source][key] == nil {
				c.Sources[source][key] = map[string]Entry{}
			}
			for name, e := range vars {
				if e.Unit == "" {
					return nil, fmt.Errorf("parse catalog: %s/%s/%s has no unit", source, model, name)
				}
				c.Sources[source][key][strings.ToLower(name)] = e
			}
		}
	}
	return c, nil
}

func floatPtr(v float64) *float64 { return &v }

// Default returns the built-in catalog covering the models used by the chart
// recipes.
func Default() *Catalog {
	micaps := map[string]map[string]Entry{}

	global := map[string]string{"ECMWF": "ECMWF_LR", "GRAPES": "GRAPES_GFS", "NCEP": "NCEP_GFS"}
	for model, prefix := range global {
		micaps[model] = map[string]Entry{
			"hgt":  {Path: prefix + "/HGT/{level}", Unit: "dagpm"},
			"u":    {Path: prefix + "/UGRD/{level}", Unit: "m/s"},
			"v":    {Path: prefix + "/VGRD/{level}", Unit: "m/s"},
			"tmp":  {Path: prefix + "/TMP/{level}", Unit: "degC"},
			"rh":   {Path: prefix + "/RH/{level}", Unit: "%", ValidMin: floatPtr(0), ValidMax: floatPtr(100)},
			"mslp": {Path: prefix + "/PRMSL", Unit: "hPa"},
		}
	}
	micaps["ECMWF"]["rain24"] = Entry{Path: "ECMWF_HR/RAIN24", Unit: "mm", ValidMin: floatPtr(0)}

	meso := map[string]string{
		"SHANGHAI":    "SHANGHAI_HR",
		"BEIJING":     "BEIJING_MR",
		"GRAPES_MESO": "GRAPES_MESO_HR",
		"GRAPES_3KM":  "GRAPES_3KM",
	}
	for model, prefix := range meso {
		cref := prefix + "/RADAR_COMBINATION_REFLECTIVITY"
		if model == "SHANGHAI" || model == "BEIJING" {
			cref = prefix + "/COMPOSITE_REFLECTIVITY/ENTIRE_ATMOSPHERE"
		}
		micaps[model] = map[string]Entry{
			"cref": {Path: cref, Unit: "dBZ", ValidMin: floatPtr(10)},
			"u":    {Path: prefix + "/UGRD/{level}", Unit: "m/s"},
			"v":    {Path: prefix + "/VGRD/{level}", Unit: "m/s"},
		}
	}

	cimiss := map[string]map[string]Entry{
		"": {
			"tem":    {DataCode: "SURF_CHN_MUL_HOR", Element: "TEM", Unit: "degC"},
			"prs":    {DataCode: "SURF_CHN_MUL_HOR", Element: "PRS", Unit: "hPa"},
			"rhu":    {DataCode: "SURF_CHN_MUL_HOR", Element: "RHU", Unit: "%", ValidMin: floatPtr(0), ValidMax: floatPtr(100)},
			"pre_1h": {DataCode: "SURF_CHN_MUL_HOR", Element: "PRE_1h", Unit: "mm", ValidMin: floatPtr(0)},
			"win_s":  {DataCode: "SURF_CHN_MUL_HOR", Element: "WIN_S_Avg_2mi", Unit: "m/s", ValidMin: floatPtr(0)},
		},
	}

	return &Catalog{Sources: map[string]map[string]map[string]Entry{
		domain.SourceMICAPS: micaps,
		domain.SourceCIMISS: cimiss,
	}}
}
