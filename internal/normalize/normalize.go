// Package normalize decodes raw connector payloads into canonical fields:
// canonical axis names and order, ascending latitude/longitude, canonical
// units and an explicit missing-value mask.
package normalize

import (
	"fmt"
	"sort"

	"github.com/couchcryptid/met-diagnostics-etl/internal/catalog"
	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
)

// ShapeHint optionally pins axis lengths by canonical axis name. A zero
// length only requires the axis to exist.
type ShapeHint map[string]int

// Normalizer turns raw responses into canonical fields. It holds no mutable
// state and is safe for concurrent use.
type Normalizer struct {
	units   UnitTable
	catalog *catalog.Catalog
}

// New creates a Normalizer. The catalog supplies units and valid ranges for
// payloads that do not carry their own.
func New(units UnitTable, cat *catalog.Catalog) *Normalizer {
	return &Normalizer{units: units, catalog: cat}
}

// Normalize decodes raw into a canonical field. Any decoding or shape
// problem returns domain.ErrMalformedResponse. The same input always yields
// the same field.
func (n *Normalizer) Normalize(raw domain.RawResponse, hint ShapeHint) (domain.Field, error) {
	entry, _ := n.catalog.Lookup(raw.Source, raw.Model, raw.Variable)

	d, err := decode(raw, entry)
	if err != nil {
		return domain.Field{}, malformed(raw, err)
	}
	if !d.hasLevel && raw.Level != 0 {
		d.level, d.hasLevel = raw.Level, true
	}
	if d.validTime.IsZero() {
		d.validTime = raw.Time.ValidTime()
	}

	unit := d.unit
	if unit == "" {
		unit = entry.Unit
	}
	if unit == "" {
		return domain.Field{}, malformed(raw, fmt.Errorf("no unit for %s", raw.Variable))
	}
	conv, ok := n.units.Lookup(unit)
	if !ok {
		return domain.Field{}, malformed(raw, fmt.Errorf("unknown unit %q", unit))
	}

	if err := canonicalize(d); err != nil {
		return domain.Field{}, malformed(raw, err)
	}

	// Valid ranges are stated in source units.
	m := mask(d.data, d.sentinels, entry.ValidMin, entry.ValidMax)
	for i, v := range d.data {
		if !m[i] {
			d.data[i] = conv.Apply(v)
		}
	}

	name := raw.Variable
	if name == "" {
		name = d.name
	}
	f := domain.Field{
		Name:   name,
		Unit:   conv.Canonical,
		Axes:   d.axes,
		Data:   d.data,
		Mask:   m,
		Coords: d.coords,
	}
	if err := checkHint(f, hint); err != nil {
		return domain.Field{}, malformed(raw, err)
	}
	if err := f.Validate(); err != nil {
		return domain.Field{}, malformed(raw, err)
	}
	return f, nil
}

func checkHint(f domain.Field, hint ShapeHint) error {
	names := make([]string, 0, len(hint))
	for name := range hint {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a, ok := f.Axis(name)
		if !ok {
			return fmt.Errorf("expected axis %q is absent", name)
		}
		if want := hint[name]; want > 0 && a.Len() != want {
			return fmt.Errorf("axis %q has length %d, expected %d", name, a.Len(), want)
		}
	}
	return nil
}

func malformed(raw domain.RawResponse, err error) error {
	return fmt.Errorf("%w: %s %s/%s: %w", domain.ErrMalformedResponse, raw.Format, raw.Model, raw.Variable, err)
}

// Denormalize converts a canonical field back to a source unit. Masked
// cells are left untouched.
func (n *Normalizer) Denormalize(f domain.Field, unit string) (domain.Field, error) {
	conv, ok := n.units.Lookup(unit)
	if !ok || conv.Canonical != f.Unit {
		return domain.Field{}, fmt.Errorf("%w: cannot express %s in %q", domain.ErrInvalidParams, f.Unit, unit)
	}
	inv := conv.Inverse(unit)
	out := f.Clone()
	out.Unit = unit
	for i, v := range out.Data {
		if !out.Mask[i] {
			out.Data[i] = inv.Apply(v)
		}
	}
	return out, nil
}
