package normalize

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Conversion maps a source unit onto its canonical unit:
// canonical = value*Scale + Offset.
type Conversion struct {
	Canonical string  `yaml:"canonical"`
	Scale     float64 `yaml:"scale"`
	Offset    float64 `yaml:"offset"`
}

// Apply converts a source value to the canonical unit.
func (c Conversion) Apply(v float64) float64 {
	return v*c.Scale + c.Offset
}

// Inverse returns the conversion from the canonical unit back to the source unit.
func (c Conversion) Inverse(source string) Conversion {
	return Conversion{Canonical: source, Scale: 1 / c.Scale, Offset: -c.Offset / c.Scale}
}

// UnitTable maps source unit strings to conversions.
type UnitTable map[string]Conversion

// DefaultUnitTable returns the conversions for the units MICAPS and CIMISS
// products arrive in.
func DefaultUnitTable() UnitTable {
	return UnitTable{
		"K":      {Canonical: "K", Scale: 1},
		"degC":   {Canonical: "K", Scale: 1, Offset: 273.15},
		"C":      {Canonical: "K", Scale: 1, Offset: 273.15},
		"degF":   {Canonical: "K", Scale: 5.0 / 9.0, Offset: 459.67 * 5.0 / 9.0},
		"hPa":    {Canonical: "hPa", Scale: 1},
		"Pa":     {Canonical: "hPa", Scale: 0.01},
		"0.1hPa": {Canonical: "hPa", Scale: 0.1},
		"m":      {Canonical: "m", Scale: 1},
		"gpm":    {Canonical: "m", Scale: 1},
		"dagpm":  {Canonical: "m", Scale: 10},
		"m/s":    {Canonical: "m/s", Scale: 1},
		"knot":   {Canonical: "m/s", Scale: 0.514444},
		"mm":     {Canonical: "mm", Scale: 1},
		"kg/m2":  {Canonical: "mm", Scale: 1},
		"0.1mm":  {Canonical: "mm", Scale: 0.1},
		"dBZ":    {Canonical: "dBZ", Scale: 1},
		"%":      {Canonical: "%", Scale: 1},
	}
}

// LoadUnitTable reads a YAML unit table and merges it over the defaults.
//
//	degC:  {canonical: K, scale: 1, offset: 273.15}
//	dagpm: {canonical: m, scale: 10}
func LoadUnitTable(path string) (UnitTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read unit table: %w", err)
	}
	return ParseUnitTable(data)
}

// ParseUnitTable decodes YAML unit table data merged over the defaults.
func ParseUnitTable(data []byte) (UnitTable, error) {
	var file UnitTable
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse unit table: %w", err)
	}
	t := DefaultUnitTable()
	for unit, c := range file {
		if c.Canonical == "" {
			return nil, fmt.Errorf("parse unit table: %q has no canonical unit", unit)
		}
		if c.Scale == 0 {
			return nil, fmt.Errorf("parse unit table: %q has zero scale", unit)
		}
		t[unit] = c
	}
	return t, nil
}

// Lookup returns the conversion for unit. A unit with no entry that is
// itself some entry's canonical unit converts by identity.
func (t UnitTable) Lookup(unit string) (Conversion, bool) {
	if c, ok := t[unit]; ok {
		return c, true
	}
	for _, c := range t {
		if c.Canonical == unit {
			return Conversion{Canonical: unit, Scale: 1}, true
		}
	}
	return Conversion{}, false
}
