package domain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Canonical axis names. Gridded fields use time, level, latitude, longitude;
// point fields replace latitude/longitude with a single station axis.
const (
	AxisTime      = "time"
	AxisLevel     = "level"
	AxisLatitude  = "latitude"
	AxisLongitude = "longitude"
	AxisStation   = "station"
)

// CanonicalGridOrder is the axis order of every normalized gridded field.
var CanonicalGridOrder = []string{AxisTime, AxisLevel, AxisLatitude, AxisLongitude}

// CanonicalPointOrder is the axis order of every normalized point field.
var CanonicalPointOrder = []string{AxisTime, AxisLevel, AxisStation}

// Axis is a named coordinate. Time values are Unix seconds. Station axes
// carry the station ids in Labels and their index in Values.
type Axis struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
	Labels []string  `json:"labels,omitempty"`
}

// Len returns the number of coordinates on the axis.
func (a Axis) Len() int {
	return len(a.Values)
}

// Equal reports whether two axes share name, coordinates and labels.
func (a Axis) Equal(b Axis) bool {
	return a.Name == b.Name && slices.Equal(a.Values, b.Values) && slices.Equal(a.Labels, b.Labels)
}

// Geo is a WGS-84 latitude/longitude pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Provenance records how a derived field was produced.
type Provenance struct {
	Operation  string         `json:"operation"`
	Inputs     []string       `json:"inputs"`
	Params     map[string]any `json:"params,omitempty"`
	ProducedAt time.Time      `json:"produced_at"`
}

// Field is a labeled multi-dimensional array. Data is row-major over Axes;
// Mask[i] marks Data[i] as missing. A Field with non-nil Provenance is a
// derived diagnostic; otherwise it came straight from the normalizer.
type Field struct {
	Name       string      `json:"name"`
	Unit       string      `json:"unit"`
	Axes       []Axis      `json:"axes"`
	Data       []float64   `json:"data"`
	Mask       []bool      `json:"mask"`
	Coords     []Geo       `json:"coords,omitempty"`
	Provenance *Provenance `json:"provenance,omitempty"`
}

// Shape returns the axis lengths in order.
func (f Field) Shape() []int {
	shape := make([]int, len(f.Axes))
	for i, a := range f.Axes {
		shape[i] = a.Len()
	}
	return shape
}

// Size returns the number of elements implied by the axes.
func (f Field) Size() int {
	n := 1
	for _, a := range f.Axes {
		n *= a.Len()
	}
	return n
}

// AxisIndex returns the position of the named axis, or -1.
func (f Field) AxisIndex(name string) int {
	return slices.IndexFunc(f.Axes, func(a Axis) bool { return a.Name == name })
}

// Axis returns the named axis.
func (f Field) Axis(name string) (Axis, bool) {
	i := f.AxisIndex(name)
	if i < 0 {
		return Axis{}, false
	}
	return f.Axes[i], true
}

// IsPoint reports whether the field is indexed by station.
func (f Field) IsPoint() bool {
	return f.AxisIndex(AxisStation) >= 0
}

// Strides returns the row-major element stride of each axis.
func (f Field) Strides() []int {
	strides := make([]int, len(f.Axes))
	s := 1
	for i := len(f.Axes) - 1; i >= 0; i-- {
		strides[i] = s
		s *= f.Axes[i].Len()
	}
	return strides
}

// Validate checks the structural invariants: a non-empty unit, unique axis
// names, and axis lengths matching the data and mask lengths.
func (f Field) Validate() error {
	var errs []error
	if f.Unit == "" {
		errs = append(errs, errors.New("unit tag is empty"))
	}
	if len(f.Axes) == 0 {
		errs = append(errs, errors.New("field has no axes"))
	}
	seen := make(map[string]bool, len(f.Axes))
	for _, a := range f.Axes {
		if a.Name == "" {
			errs = append(errs, errors.New("axis without a name"))
		}
		if seen[a.Name] {
			errs = append(errs, fmt.Errorf("duplicate axis %q", a.Name))
		}
		seen[a.Name] = true
		if a.Len() == 0 {
			errs = append(errs, fmt.Errorf("axis %q is empty", a.Name))
		}
		if len(a.Labels) > 0 && len(a.Labels) != a.Len() {
			errs = append(errs, fmt.Errorf("axis %q has %d labels for %d values", a.Name, len(a.Labels), a.Len()))
		}
	}
	if n := f.Size(); len(f.Data) != n || len(f.Mask) != n {
		errs = append(errs, fmt.Errorf("shape %v implies %d elements, have %d data and %d mask",
			f.Shape(), n, len(f.Data), len(f.Mask)))
	}
	if f.IsPoint() && len(f.Coords) > 0 {
		st, _ := f.Axis(AxisStation)
		if len(f.Coords) != st.Len() {
			errs = append(errs, fmt.Errorf("%d station coords for %d stations", len(f.Coords), st.Len()))
		}
	}
	return errors.Join(errs...)
}

// MaskedCount returns the number of masked elements.
func (f Field) MaskedCount() int {
	n := 0
	for _, m := range f.Mask {
		if m {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (f Field) Clone() Field {
	out := Field{
		Name:   f.Name,
		Unit:   f.Unit,
		Axes:   make([]Axis, len(f.Axes)),
		Data:   slices.Clone(f.Data),
		Mask:   slices.Clone(f.Mask),
		Coords: slices.Clone(f.Coords),
	}
	for i, a := range f.Axes {
		out.Axes[i] = Axis{Name: a.Name, Values: slices.Clone(a.Values), Labels: slices.Clone(a.Labels)}
	}
	if f.Provenance != nil {
		p := *f.Provenance
		p.Inputs = slices.Clone(p.Inputs)
		p.Params = maps.Clone(p.Params)
		out.Provenance = &p
	}
	return out
}

// SameGrid reports whether two fields share axes (names, lengths and
// coordinates) in the same order.
func SameGrid(a, b Field) bool {
	return slices.EqualFunc(a.Axes, b.Axes, Axis.Equal)
}
