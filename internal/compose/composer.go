// Package compose derives diagnostic fields from normalized fields with
// elementwise arithmetic, vertical reductions and interpolation.
//
// Every operation treats the input mask as contagious: an output element is
// masked whenever any input element it depends on is masked. Inputs are
// never modified.
package compose

import (
	"fmt"
	"slices"
	"sort"

	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
)

// Operation names.
const (
	OpDifference         = "difference"
	OpSum                = "sum"
	OpScale              = "scale"
	OpWindSpeed          = "wind_speed"
	OpLayerAverage       = "layer_average"
	OpVerticalDerivative = "vertical_derivative"
	OpInterpolateLevel   = "interpolate_level"
	OpSubset             = "subset"
	OpThresholdMask      = "threshold_mask"
	OpStackLevels        = "stack_levels"
)

// Operation is one registered composition. MaxInputs of zero means no upper
// bound.
type Operation struct {
	Name      string
	MinInputs int
	MaxInputs int
	Apply     func(inputs []domain.Field, p Params) (domain.Field, error)
}

// Composer dispatches operations by name. It is safe for concurrent use once
// registration is done.
type Composer struct {
	ops map[string]Operation
}

// New returns a Composer with the built-in operations registered.
func New() *Composer {
	c := &Composer{ops: make(map[string]Operation)}
	for _, op := range []Operation{
		{Name: OpDifference, MinInputs: 2, MaxInputs: 2, Apply: difference},
		{Name: OpSum, MinInputs: 2, Apply: sum},
		{Name: OpScale, MinInputs: 1, MaxInputs: 1, Apply: scale},
		{Name: OpWindSpeed, MinInputs: 2, MaxInputs: 2, Apply: windSpeed},
		{Name: OpLayerAverage, MinInputs: 1, MaxInputs: 1, Apply: layerAverage},
		{Name: OpVerticalDerivative, MinInputs: 1, MaxInputs: 1, Apply: verticalDerivative},
		{Name: OpInterpolateLevel, MinInputs: 1, MaxInputs: 1, Apply: interpolateLevel},
		{Name: OpSubset, MinInputs: 1, MaxInputs: 1, Apply: subset},
		{Name: OpThresholdMask, MinInputs: 1, MaxInputs: 1, Apply: thresholdMask},
		{Name: OpStackLevels, MinInputs: 1, Apply: stackLevels},
	} {
		c.Register(op)
	}
	return c
}

// Register adds or replaces an operation.
func (c *Composer) Register(op Operation) {
	c.ops[op.Name] = op
}

// Operations lists the registered operation names, sorted.
func (c *Composer) Operations() []string {
	names := make([]string, 0, len(c.ops))
	for n := range c.ops {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Compose applies the named operation and stamps the result with its
// provenance.
func (c *Composer) Compose(name string, inputs []domain.Field, p Params) (domain.Field, error) {
	op, ok := c.ops[name]
	if !ok {
		return domain.Field{}, fmt.Errorf("compose: %w: unknown operation %q", domain.ErrInvalidParams, name)
	}
	if len(inputs) < op.MinInputs || (op.MaxInputs > 0 && len(inputs) > op.MaxInputs) {
		return domain.Field{}, fmt.Errorf("compose %s: %w: %d inputs", name, domain.ErrInvalidParams, len(inputs))
	}
	for _, in := range inputs {
		if err := in.Validate(); err != nil {
			return domain.Field{}, fmt.Errorf("compose %s: %w: input %q: %w", name, domain.ErrAxisMismatch, in.Name, err)
		}
	}

	out, err := op.Apply(inputs, p)
	if err != nil {
		return domain.Field{}, fmt.Errorf("compose %s: %w", name, err)
	}

	names := make([]string, len(inputs))
	for i, in := range inputs {
		names[i] = in.Name
	}
	out.Provenance = &domain.Provenance{
		Operation:  name,
		Inputs:     names,
		Params:     p.clone(),
		ProducedAt: domain.Now(),
	}
	return out, nil
}

// requireSameGrid checks that all inputs share axes and unit.
func requireSameGrid(inputs []domain.Field) error {
	first := inputs[0]
	for _, f := range inputs[1:] {
		if !domain.SameGrid(first, f) {
			return fmt.Errorf("%w: %q axes %v differ from %q axes %v",
				domain.ErrAxisMismatch, f.Name, axisNames(f), first.Name, axisNames(first))
		}
		if f.Unit != first.Unit {
			return fmt.Errorf("%w: %q is in %s, %q in %s", domain.ErrAxisMismatch, f.Name, f.Unit, first.Name, first.Unit)
		}
	}
	return nil
}

func axisNames(f domain.Field) []string {
	names := make([]string, len(f.Axes))
	for i, a := range f.Axes {
		names[i] = fmt.Sprintf("%s[%d]", a.Name, a.Len())
	}
	return names
}

// like returns an empty field with the axes and coords of f.
func like(f domain.Field, name, unit string) domain.Field {
	out := f.Clone()
	out.Name = name
	out.Unit = unit
	out.Provenance = nil
	clear(out.Data)
	clear(out.Mask)
	return out
}

// elementwise applies fn across aligned inputs. An element masked in any
// input is masked in the output.
func elementwise(inputs []domain.Field, name, unit string, fn func(vals []float64) float64) domain.Field {
	out := like(inputs[0], name, unit)
	vals := make([]float64, len(inputs))
	for i := range out.Data {
		masked := false
		for k, in := range inputs {
			if in.Mask[i] {
				masked = true
				break
			}
			vals[k] = in.Data[i]
		}
		if masked {
			out.Mask[i] = true
			continue
		}
		out.Data[i] = fn(vals)
	}
	return out
}

// levelLayout splits a field around its level axis: outer elements before
// the axis, n levels, inner elements after.
func levelLayout(f domain.Field) (li, outer, n, inner int, err error) {
	li = f.AxisIndex(domain.AxisLevel)
	if li < 0 {
		return 0, 0, 0, 0, fmt.Errorf("%w: %q has no level axis", domain.ErrAxisMismatch, f.Name)
	}
	shape := f.Shape()
	outer, inner = 1, 1
	for _, s := range shape[:li] {
		outer *= s
	}
	for _, s := range shape[li+1:] {
		inner *= s
	}
	return li, outer, shape[li], inner, nil
}

// strictlyMonotonic rejects level coordinates that repeat or change
// direction.
func strictlyMonotonic(name string, levels []float64) error {
	if len(levels) < 2 {
		return nil
	}
	up := levels[1] > levels[0]
	for k := 1; k < len(levels); k++ {
		if levels[k] == levels[k-1] || (levels[k] > levels[k-1]) != up {
			return fmt.Errorf("%w: %q levels %v are not strictly monotonic", domain.ErrAxisMismatch, name, levels)
		}
	}
	return nil
}

// withLevels returns f's metadata with the level axis replaced.
func withLevels(f domain.Field, li int, levels []float64, name, unit string) domain.Field {
	out := domain.Field{
		Name:   name,
		Unit:   unit,
		Axes:   cloneAxes(f.Axes),
		Coords: slices.Clone(f.Coords),
	}
	out.Axes[li] = domain.Axis{Name: domain.AxisLevel, Values: levels}
	n := out.Size()
	out.Data = make([]float64, n)
	out.Mask = make([]bool, n)
	return out
}

func cloneAxes(axes []domain.Axis) []domain.Axis {
	out := make([]domain.Axis, len(axes))
	for i, a := range axes {
		out[i] = domain.Axis{Name: a.Name, Values: slices.Clone(a.Values), Labels: slices.Clone(a.Labels)}
	}
	return out
}
