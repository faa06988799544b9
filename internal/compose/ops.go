package compose

import (
	"fmt"
	"math"
	"slices"

	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
)

func difference(in []domain.Field, p Params) (domain.Field, error) {
	if err := requireSameGrid(in); err != nil {
		return domain.Field{}, err
	}
	name, err := p.StringOr("name", in[0].Name+"-"+in[1].Name)
	if err != nil {
		return domain.Field{}, err
	}
	return elementwise(in, name, in[0].Unit, func(v []float64) float64 { return v[0] - v[1] }), nil
}

func sum(in []domain.Field, p Params) (domain.Field, error) {
	if err := requireSameGrid(in); err != nil {
		return domain.Field{}, err
	}
	name, err := p.StringOr("name", "sum("+in[0].Name+",...)")
	if err != nil {
		return domain.Field{}, err
	}
	return elementwise(in, name, in[0].Unit, func(v []float64) float64 {
		var s float64
		for _, x := range v {
			s += x
		}
		return s
	}), nil
}

func scale(in []domain.Field, p Params) (domain.Field, error) {
	factor, err := p.FloatOr("factor", 1)
	if err != nil {
		return domain.Field{}, err
	}
	offset, err := p.FloatOr("offset", 0)
	if err != nil {
		return domain.Field{}, err
	}
	unit, err := p.StringOr("unit", in[0].Unit)
	if err != nil {
		return domain.Field{}, err
	}
	name, err := p.StringOr("name", in[0].Name)
	if err != nil {
		return domain.Field{}, err
	}
	if unit == "" {
		return domain.Field{}, fmt.Errorf("%w: unit must not be empty", domain.ErrInvalidParams)
	}
	return elementwise(in, name, unit, func(v []float64) float64 { return v[0]*factor + offset }), nil
}

func windSpeed(in []domain.Field, p Params) (domain.Field, error) {
	if err := requireSameGrid(in); err != nil {
		return domain.Field{}, err
	}
	name, err := p.StringOr("name", "wind_speed")
	if err != nil {
		return domain.Field{}, err
	}
	return elementwise(in, name, in[0].Unit, func(v []float64) float64 { return math.Hypot(v[0], v[1]) }), nil
}

// layerAverage averages the levels within [bottom, top] (either order). The
// level axis collapses to one coordinate, the mean of the selected levels.
func layerAverage(in []domain.Field, p Params) (domain.Field, error) {
	f := in[0]
	bottom, err := p.RequireFloat("bottom")
	if err != nil {
		return domain.Field{}, err
	}
	top, err := p.RequireFloat("top")
	if err != nil {
		return domain.Field{}, err
	}
	lo, hi := min(bottom, top), max(bottom, top)

	li, outer, n, inner, err := levelLayout(f)
	if err != nil {
		return domain.Field{}, err
	}
	levels := f.Axes[li].Values
	var sel []int
	var levelSum float64
	for k, lv := range levels {
		if lv >= lo && lv <= hi {
			sel = append(sel, k)
			levelSum += lv
		}
	}
	if len(sel) == 0 {
		return domain.Field{}, fmt.Errorf("%w: no level of %q within [%g, %g]", domain.ErrAxisMismatch, f.Name, lo, hi)
	}

	name, err := p.StringOr("name", f.Name)
	if err != nil {
		return domain.Field{}, err
	}
	out := withLevels(f, li, []float64{levelSum / float64(len(sel))}, name, f.Unit)
	for o := range outer {
		for i := range inner {
			dst := o*inner + i
			var s float64
			for _, k := range sel {
				src := (o*n+k)*inner + i
				if f.Mask[src] {
					out.Mask[dst] = true
					break
				}
				s += f.Data[src]
			}
			if !out.Mask[dst] {
				out.Data[dst] = s / float64(len(sel))
			}
		}
	}
	return out, nil
}

// verticalDerivative is the centred difference along the level axis with
// one-sided differences at the ends.
func verticalDerivative(in []domain.Field, p Params) (domain.Field, error) {
	f := in[0]
	li, outer, n, inner, err := levelLayout(f)
	if err != nil {
		return domain.Field{}, err
	}
	if n < 2 {
		return domain.Field{}, fmt.Errorf("%w: %q needs at least two levels", domain.ErrAxisMismatch, f.Name)
	}
	levels := f.Axes[li].Values
	if err := strictlyMonotonic(f.Name, levels); err != nil {
		return domain.Field{}, err
	}

	levelUnit, err := p.StringOr("level_unit", "hPa")
	if err != nil {
		return domain.Field{}, err
	}
	name, err := p.StringOr("name", "d"+f.Name+"/dlevel")
	if err != nil {
		return domain.Field{}, err
	}
	out := like(f, name, f.Unit+"/"+levelUnit)
	for o := range outer {
		for k := range n {
			a, b := max(k-1, 0), min(k+1, n-1)
			for i := range inner {
				dst := (o*n+k)*inner + i
				ia, ib := (o*n+a)*inner+i, (o*n+b)*inner+i
				if f.Mask[dst] || f.Mask[ia] || f.Mask[ib] {
					out.Mask[dst] = true
					continue
				}
				out.Data[dst] = (f.Data[ib] - f.Data[ia]) / (levels[b] - levels[a])
			}
		}
	}
	return out, nil
}

// interpolateLevel interpolates to a single target level between the two
// bracketing levels. Methods: "linear" in the level coordinate, or
// "log_pressure" linear in ln(level).
func interpolateLevel(in []domain.Field, p Params) (domain.Field, error) {
	f := in[0]
	target, err := p.RequireFloat("target")
	if err != nil {
		return domain.Field{}, err
	}
	method, err := p.StringOr("method", "linear")
	if err != nil {
		return domain.Field{}, err
	}
	coord := func(v float64) float64 { return v }
	switch method {
	case "linear":
	case "log_pressure":
		coord = math.Log
	default:
		return domain.Field{}, fmt.Errorf("%w: unknown interpolation method %q", domain.ErrInvalidParams, method)
	}

	li, outer, n, inner, err := levelLayout(f)
	if err != nil {
		return domain.Field{}, err
	}
	levels := f.Axes[li].Values
	if method == "log_pressure" && (target <= 0 || slices.ContainsFunc(levels, func(v float64) bool { return v <= 0 })) {
		return domain.Field{}, fmt.Errorf("%w: log_pressure needs positive levels", domain.ErrInvalidParams)
	}

	a, b := -1, -1
	for k := range n {
		if levels[k] == target {
			a, b = k, k
			break
		}
		if k+1 < n && min(levels[k], levels[k+1]) < target && target < max(levels[k], levels[k+1]) {
			a, b = k, k+1
			break
		}
	}
	if a < 0 {
		return domain.Field{}, fmt.Errorf("%w: level %g outside %v", domain.ErrAxisMismatch, target, levels)
	}
	w := 0.0
	if a != b {
		w = (coord(target) - coord(levels[a])) / (coord(levels[b]) - coord(levels[a]))
	}

	name, err := p.StringOr("name", fmt.Sprintf("%s@%g", f.Name, target))
	if err != nil {
		return domain.Field{}, err
	}
	out := withLevels(f, li, []float64{target}, name, f.Unit)
	for o := range outer {
		for i := range inner {
			dst := o*inner + i
			ia, ib := (o*n+a)*inner+i, (o*n+b)*inner+i
			if f.Mask[ia] || f.Mask[ib] {
				out.Mask[dst] = true
				continue
			}
			out.Data[dst] = f.Data[ia] + w*(f.Data[ib]-f.Data[ia])
		}
	}
	return out, nil
}

// subset crops a grid to an extent, or keeps the stations inside it.
func subset(in []domain.Field, p Params) (domain.Field, error) {
	f := in[0]
	var ext domain.Extent
	var err error
	for _, b := range []struct {
		key string
		dst *float64
	}{
		{"lon_min", &ext.LonMin}, {"lon_max", &ext.LonMax},
		{"lat_min", &ext.LatMin}, {"lat_max", &ext.LatMax},
	} {
		if *b.dst, err = p.RequireFloat(b.key); err != nil {
			return domain.Field{}, err
		}
	}
	if err := ext.Validate(); err != nil {
		return domain.Field{}, fmt.Errorf("%w: %v", domain.ErrInvalidParams, err)
	}

	if f.IsPoint() {
		return subsetStations(f, ext)
	}
	lat, lon := f.AxisIndex(domain.AxisLatitude), f.AxisIndex(domain.AxisLongitude)
	if lat < 0 || lon < 0 {
		return domain.Field{}, fmt.Errorf("%w: %q has no latitude/longitude axes", domain.ErrAxisMismatch, f.Name)
	}
	keep := make([][]int, len(f.Axes))
	for ai, a := range f.Axes {
		for k, v := range a.Values {
			switch ai {
			case lat:
				if v < ext.LatMin || v > ext.LatMax {
					continue
				}
			case lon:
				if v < ext.LonMin || v > ext.LonMax {
					continue
				}
			}
			keep[ai] = append(keep[ai], k)
		}
		if len(keep[ai]) == 0 {
			return domain.Field{}, fmt.Errorf("%w: %q has no %s within the extent", domain.ErrAxisMismatch, f.Name, a.Name)
		}
	}
	return take(f, keep), nil
}

func subsetStations(f domain.Field, ext domain.Extent) (domain.Field, error) {
	if len(f.Coords) == 0 {
		return domain.Field{}, fmt.Errorf("%w: %q has no station coordinates", domain.ErrAxisMismatch, f.Name)
	}
	st := f.AxisIndex(domain.AxisStation)
	keep := make([][]int, len(f.Axes))
	for ai, a := range f.Axes {
		for k := range a.Values {
			if ai == st && !ext.Contains(f.Coords[k].Lat, f.Coords[k].Lon) {
				continue
			}
			keep[ai] = append(keep[ai], k)
		}
	}
	if len(keep[st]) == 0 {
		return domain.Field{}, fmt.Errorf("%w: no station of %q within the extent", domain.ErrAxisMismatch, f.Name)
	}
	out := take(f, keep)
	out.Coords = make([]domain.Geo, len(keep[st]))
	for i, k := range keep[st] {
		out.Coords[i] = f.Coords[k]
	}
	return out, nil
}

// take gathers the listed indices of every axis into a new field.
func take(f domain.Field, keep [][]int) domain.Field {
	out := domain.Field{Name: f.Name, Unit: f.Unit, Axes: make([]domain.Axis, len(f.Axes))}
	for ai, a := range f.Axes {
		ax := domain.Axis{Name: a.Name, Values: make([]float64, len(keep[ai]))}
		if len(a.Labels) > 0 {
			ax.Labels = make([]string, len(keep[ai]))
		}
		for j, k := range keep[ai] {
			ax.Values[j] = a.Values[k]
			if ax.Labels != nil {
				ax.Labels[j] = a.Labels[k]
			}
		}
		out.Axes[ai] = ax
	}
	n := out.Size()
	out.Data = make([]float64, 0, n)
	out.Mask = make([]bool, 0, n)

	src := f.Strides()
	idx := make([]int, len(keep))
	for range n {
		off := 0
		for ai, j := range idx {
			off += keep[ai][j] * src[ai]
		}
		out.Data = append(out.Data, f.Data[off])
		out.Mask = append(out.Mask, f.Mask[off])
		for ai := len(idx) - 1; ai >= 0; ai-- {
			idx[ai]++
			if idx[ai] < len(keep[ai]) {
				break
			}
			idx[ai] = 0
		}
	}
	out.Coords = slices.Clone(f.Coords)
	return out
}

// thresholdMask masks values below min or above max. Values themselves are
// unchanged.
func thresholdMask(in []domain.Field, p Params) (domain.Field, error) {
	lo, hasLo, err := p.Float("min")
	if err != nil {
		return domain.Field{}, err
	}
	hi, hasHi, err := p.Float("max")
	if err != nil {
		return domain.Field{}, err
	}
	if !hasLo && !hasHi {
		return domain.Field{}, fmt.Errorf("%w: min or max is required", domain.ErrInvalidParams)
	}
	f := in[0]
	out := f.Clone()
	out.Provenance = nil
	for i, v := range out.Data {
		if out.Mask[i] {
			continue
		}
		if (hasLo && v < lo) || (hasHi && v > hi) {
			out.Mask[i] = true
			out.Data[i] = 0
		}
	}
	return out, nil
}

// stackLevels concatenates single-level fields along the level axis in input
// order. All other axes must agree.
func stackLevels(in []domain.Field, p Params) (domain.Field, error) {
	first := in[0]
	li, outer, _, inner, err := levelLayout(first)
	if err != nil {
		return domain.Field{}, err
	}
	levels := make([]float64, 0, len(in))
	for _, f := range in {
		if len(f.Axes) != len(first.Axes) {
			return domain.Field{}, fmt.Errorf("%w: %q has %d axes, %q has %d",
				domain.ErrAxisMismatch, f.Name, len(f.Axes), first.Name, len(first.Axes))
		}
		if f.AxisIndex(domain.AxisLevel) != li || f.Axes[li].Len() != 1 {
			return domain.Field{}, fmt.Errorf("%w: %q is not a single-level field", domain.ErrAxisMismatch, f.Name)
		}
		if f.Unit != first.Unit {
			return domain.Field{}, fmt.Errorf("%w: %q is in %s, %q in %s", domain.ErrAxisMismatch, f.Name, f.Unit, first.Name, first.Unit)
		}
		for ai, a := range f.Axes {
			if ai != li && !a.Equal(first.Axes[ai]) {
				return domain.Field{}, fmt.Errorf("%w: %q %s axis differs", domain.ErrAxisMismatch, f.Name, a.Name)
			}
		}
		lv := f.Axes[li].Values[0]
		if slices.Contains(levels, lv) {
			return domain.Field{}, fmt.Errorf("%w: level %g given twice", domain.ErrAxisMismatch, lv)
		}
		levels = append(levels, lv)
	}

	name, err := p.StringOr("name", first.Name)
	if err != nil {
		return domain.Field{}, err
	}
	n := len(in)
	out := withLevels(first, li, levels, name, first.Unit)
	for k, f := range in {
		for o := range outer {
			for i := range inner {
				src := o*inner + i
				dst := (o*n+k)*inner + i
				out.Data[dst] = f.Data[src]
				out.Mask[dst] = f.Mask[src]
			}
		}
	}
	return out, nil
}
