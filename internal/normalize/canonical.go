package normalize

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
)

// axisAliases maps the dimension names seen in source payloads to canonical
// axis names. Keys are lower case.
var axisAliases = map[string]string{
	"time":         domain.AxisTime,
	"valid_time":   domain.AxisTime,
	"datetime":     domain.AxisTime,
	"t":            domain.AxisTime,
	"level":        domain.AxisLevel,
	"lev":          domain.AxisLevel,
	"plev":         domain.AxisLevel,
	"isobaric":     domain.AxisLevel,
	"pressure":     domain.AxisLevel,
	"z":            domain.AxisLevel,
	"latitude":     domain.AxisLatitude,
	"lat":          domain.AxisLatitude,
	"y":            domain.AxisLatitude,
	"longitude":    domain.AxisLongitude,
	"lon":          domain.AxisLongitude,
	"x":            domain.AxisLongitude,
	"station":      domain.AxisStation,
	"station_id":   domain.AxisStation,
	"station_id_c": domain.AxisStation,
	"sta":          domain.AxisStation,
}

// canonicalize renames, completes, reorders and orients the axes of d in
// place. Missing cells stay NaN.
func canonicalize(d *decoded) error {
	// Rename, dropping unknown singleton axes.
	shape := d.shape()
	kept := make([]int, 0, len(d.axes))
	for i := range d.axes {
		name, ok := axisAliases[strings.ToLower(d.axes[i].Name)]
		if !ok {
			if d.axes[i].Len() == 1 {
				continue
			}
			return fmt.Errorf("unknown axis %q of length %d", d.axes[i].Name, d.axes[i].Len())
		}
		d.axes[i].Name = name
		kept = append(kept, i)
	}
	if len(kept) != len(d.axes) {
		axes := make([]domain.Axis, len(kept))
		newShape := make([]int, len(kept))
		for k, i := range kept {
			axes[k] = d.axes[i]
			newShape[k] = shape[i]
		}
		// Dropping length-1 axes leaves the row-major layout unchanged.
		d.axes, shape = axes, newShape
	}

	seen := map[string]bool{}
	for _, a := range d.axes {
		if seen[a.Name] {
			return fmt.Errorf("axis %q appears twice", a.Name)
		}
		seen[a.Name] = true
	}

	order := domain.CanonicalGridOrder
	switch {
	case seen[domain.AxisStation]:
		if seen[domain.AxisLatitude] || seen[domain.AxisLongitude] {
			return errors.New("station axis alongside latitude/longitude")
		}
		order = domain.CanonicalPointOrder
	case !seen[domain.AxisLatitude] || !seen[domain.AxisLongitude]:
		return errors.New("latitude and longitude axes are required")
	}

	// Singleton axes can be prepended without touching the data.
	if !seen[domain.AxisLevel] {
		level := 0.0
		if d.hasLevel {
			level = d.level
		}
		d.axes = slices.Insert(d.axes, 0, domain.Axis{Name: domain.AxisLevel, Values: []float64{level}})
		shape = slices.Insert(shape, 0, 1)
	}
	if !seen[domain.AxisTime] {
		var ts float64
		if !d.validTime.IsZero() {
			ts = float64(d.validTime.Unix())
		}
		d.axes = slices.Insert(d.axes, 0, domain.Axis{Name: domain.AxisTime, Values: []float64{ts}})
		shape = slices.Insert(shape, 0, 1)
	}

	perm := make([]int, len(order))
	for k, name := range order {
		perm[k] = slices.IndexFunc(d.axes, func(a domain.Axis) bool { return a.Name == name })
	}
	if !isIdentity(perm) {
		d.data = permute(d.data, shape, perm)
		axes := make([]domain.Axis, len(perm))
		for k, p := range perm {
			axes[k] = d.axes[p]
		}
		d.axes = axes
		shape = d.shape()
	}

	for i := range d.axes {
		name := d.axes[i].Name
		if name != domain.AxisLatitude && name != domain.AxisLongitude {
			continue
		}
		if descending(d.axes[i].Values) {
			d.data = flip(d.data, shape, i)
			slices.Reverse(d.axes[i].Values)
		}
	}
	return nil
}

func isIdentity(perm []int) bool {
	for i, p := range perm {
		if i != p {
			return false
		}
	}
	return true
}

func descending(v []float64) bool {
	return len(v) > 1 && v[0] > v[len(v)-1]
}

func strides(shape []int) []int {
	out := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		out[i] = s
		s *= shape[i]
	}
	return out
}

// permute reorders row-major data so output axis k is source axis perm[k].
func permute(data []float64, shape, perm []int) []float64 {
	src := strides(shape)
	outShape := make([]int, len(perm))
	for k, p := range perm {
		outShape[k] = shape[p]
	}
	out := make([]float64, len(data))
	idx := make([]int, len(perm))
	for o := range out {
		off := 0
		for k, p := range perm {
			off += idx[k] * src[p]
		}
		out[o] = data[off]
		for k := len(idx) - 1; k >= 0; k-- {
			idx[k]++
			if idx[k] < outShape[k] {
				break
			}
			idx[k] = 0
		}
	}
	return out
}

// flip reverses row-major data along one axis.
func flip(data []float64, shape []int, axis int) []float64 {
	st := strides(shape)
	n := shape[axis]
	out := make([]float64, len(data))
	for i, v := range data {
		pos := (i / st[axis]) % n
		j := i + (n-1-2*pos)*st[axis]
		out[j] = v
	}
	return out
}

// mask converts NaN, sentinel and out-of-range cells into a mask. Masked data
// cells are zeroed so the field stays JSON encodable.
func mask(data []float64, sentinels []float64, lo, hi *float64) []bool {
	m := make([]bool, len(data))
	for i, v := range data {
		bad := math.IsNaN(v) || math.IsInf(v, 0) || slices.Contains(sentinels, v) ||
			(lo != nil && v < *lo) || (hi != nil && v > *hi)
		if bad {
			m[i] = true
			data[i] = 0
		}
	}
	return m
}
