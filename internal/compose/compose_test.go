package compose

import (
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var producedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	domain.SetClock(clockwork.NewFakeClockAt(producedAt))
	m.Run()
}

// grid builds a (time, level, lat, lon) field with v = k*100 + j*10 + i and
// the given flat indices masked.
func grid(name string, levels, lats, lons []float64, masked ...int) domain.Field {
	f := domain.Field{
		Name: name,
		Unit: "K",
		Axes: []domain.Axis{
			{Name: domain.AxisTime, Values: []float64{0}},
			{Name: domain.AxisLevel, Values: levels},
			{Name: domain.AxisLatitude, Values: lats},
			{Name: domain.AxisLongitude, Values: lons},
		},
	}
	for k := range levels {
		for j := range lats {
			for i := range lons {
				f.Data = append(f.Data, float64(k*100+j*10+i))
			}
		}
	}
	f.Mask = make([]bool, len(f.Data))
	for _, i := range masked {
		f.Mask[i] = true
		f.Data[i] = 0
	}
	return f
}

func column(name string, masked ...int) domain.Field {
	return grid(name, []float64{850, 700, 500}, []float64{30, 31}, []float64{110, 111}, masked...)
}

func single(name string, level float64, masked ...int) domain.Field {
	return grid(name, []float64{level}, []float64{30, 31}, []float64{110, 111}, masked...)
}

func maskedAt(f domain.Field) []int {
	var out []int
	for i, m := range f.Mask {
		if m {
			out = append(out, i)
		}
	}
	return out
}

func TestDifference_IdenticalFieldsIsZero(t *testing.T) {
	f := column("t", 5)

	out, err := New().Compose(OpDifference, []domain.Field{f, f}, nil)
	require.NoError(t, err)

	assert.Equal(t, make([]float64, 12), out.Data)
	assert.Equal(t, []int{5}, maskedAt(out))
	assert.Equal(t, f.Axes, out.Axes)
	assert.Equal(t, "K", out.Unit)

	require.NotNil(t, out.Provenance)
	assert.Equal(t, OpDifference, out.Provenance.Operation)
	assert.Equal(t, []string{"t", "t"}, out.Provenance.Inputs)
	assert.Equal(t, producedAt, out.Provenance.ProducedAt)
}

func TestMaskContagion(t *testing.T) {
	tests := []struct {
		op     string
		inputs []domain.Field
		params Params
		want   []int
	}{
		{OpDifference, []domain.Field{column("a", 1), column("b", 6)}, nil, []int{1, 6}},
		{OpSum, []domain.Field{column("a", 1), column("b", 6), column("c", 11)}, nil, []int{1, 6, 11}},
		{OpScale, []domain.Field{column("a", 1)}, Params{"factor": 2}, []int{1}},
		{OpWindSpeed, []domain.Field{column("u", 1), column("v", 6)}, nil, []int{1, 6}},
		{OpThresholdMask, []domain.Field{column("a", 1)}, Params{"min": -1}, []int{1}},
		{OpLayerAverage, []domain.Field{column("a", 1)}, Params{"bottom": 850, "top": 700}, []int{1}},
		{OpVerticalDerivative, []domain.Field{column("a", 4)}, nil, []int{0, 4, 8}},
		{OpInterpolateLevel, []domain.Field{column("a", 4)}, Params{"target": 600}, []int{0}},
		{OpInterpolateLevel, []domain.Field{column("a", 4)}, Params{"target": 600, "method": "log_pressure"}, []int{0}},
		{OpSubset, []domain.Field{column("a", 2)}, Params{"lon_min": 109, "lon_max": 112, "lat_min": 30.5, "lat_max": 32}, []int{0}},
		{OpStackLevels, []domain.Field{single("a", 500, 1), single("b", 850, 2)}, nil, []int{1, 6}},
	}
	for _, tc := range tests {
		t.Run(tc.op, func(t *testing.T) {
			out, err := New().Compose(tc.op, tc.inputs, tc.params)
			require.NoError(t, err)
			require.NoError(t, out.Validate())
			assert.Equal(t, tc.want, maskedAt(out))
		})
	}
}

func TestComposeDoesNotMutateInputs(t *testing.T) {
	c := New()
	for _, op := range []struct {
		name   string
		params Params
	}{
		{OpDifference, nil},
		{OpThresholdMask, Params{"max": 50}},
		{OpSubset, Params{"lon_min": 110, "lon_max": 110.5, "lat_min": 29, "lat_max": 40}},
		{OpLayerAverage, Params{"bottom": 500, "top": 850}},
	} {
		a, b := column("a", 3), column("b")
		wantA, wantB := a.Clone(), b.Clone()
		inputs := []domain.Field{a, b}
		if op.name != OpDifference {
			inputs = inputs[:1]
		}
		_, err := c.Compose(op.name, inputs, op.params)
		require.NoError(t, err, op.name)
		assert.Equal(t, wantA, a, op.name)
		assert.Equal(t, wantB, b, op.name)
	}
}

func TestWindSpeed(t *testing.T) {
	u, v := single("u", 850), single("v", 850)
	for i := range u.Data {
		u.Data[i], v.Data[i] = 3, 4
	}
	out, err := New().Compose(OpWindSpeed, []domain.Field{u, v}, nil)
	require.NoError(t, err)
	assert.Equal(t, "wind_speed", out.Name)
	assert.Equal(t, []float64{5, 5, 5, 5}, out.Data)
}

func TestScale(t *testing.T) {
	out, err := New().Compose(OpScale, []domain.Field{single("t", 850)},
		Params{"factor": 1, "offset": -273.15, "unit": "degC", "name": "t_c"})
	require.NoError(t, err)
	assert.Equal(t, "degC", out.Unit)
	assert.Equal(t, "t_c", out.Name)
	assert.InDelta(t, -273.15+11, out.Data[3], 1e-9)
	assert.Equal(t, map[string]any{"factor": 1, "offset": -273.15, "unit": "degC", "name": "t_c"}, out.Provenance.Params)
}

func TestLayerAverage(t *testing.T) {
	out, err := New().Compose(OpLayerAverage, []domain.Field{column("t")}, Params{"bottom": 850, "top": 700})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1, 2, 2}, out.Shape())
	lv, _ := out.Axis(domain.AxisLevel)
	assert.Equal(t, []float64{775}, lv.Values)
	assert.Equal(t, []float64{50, 51, 60, 61}, out.Data)
}

func TestVerticalDerivative(t *testing.T) {
	out, err := New().Compose(OpVerticalDerivative, []domain.Field{column("t")}, nil)
	require.NoError(t, err)

	assert.Equal(t, "K/hPa", out.Unit)
	assert.Equal(t, []int{1, 3, 2, 2}, out.Shape())
	assert.InDelta(t, 100.0/-150, out.Data[0], 1e-12)
	assert.InDelta(t, 200.0/-350, out.Data[4], 1e-12)
	assert.InDelta(t, 100.0/-200, out.Data[8], 1e-12)
}

func TestInterpolateLevel(t *testing.T) {
	c := New()

	out, err := c.Compose(OpInterpolateLevel, []domain.Field{column("t")}, Params{"target": 600})
	require.NoError(t, err)
	lv, _ := out.Axis(domain.AxisLevel)
	assert.Equal(t, []float64{600}, lv.Values)
	assert.Equal(t, []float64{150, 151, 160, 161}, out.Data)

	out, err = c.Compose(OpInterpolateLevel, []domain.Field{column("t")}, Params{"target": 600, "method": "log_pressure"})
	require.NoError(t, err)
	w := (math.Log(600) - math.Log(700)) / (math.Log(500) - math.Log(700))
	assert.InDelta(t, 100+100*w, out.Data[0], 1e-9)

	out, err = c.Compose(OpInterpolateLevel, []domain.Field{column("t")}, Params{"target": 500})
	require.NoError(t, err)
	assert.Equal(t, []float64{200, 201, 210, 211}, out.Data)
}

func TestSubset_Grid(t *testing.T) {
	f := grid("t", []float64{500}, []float64{30, 31, 32}, []float64{110, 111, 112})
	out, err := New().Compose(OpSubset, []domain.Field{f},
		Params{"lon_min": 110.5, "lon_max": 112, "lat_min": 31, "lat_max": 32})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1, 2, 2}, out.Shape())
	lat, _ := out.Axis(domain.AxisLatitude)
	lon, _ := out.Axis(domain.AxisLongitude)
	assert.Equal(t, []float64{31, 32}, lat.Values)
	assert.Equal(t, []float64{111, 112}, lon.Values)
	assert.Equal(t, []float64{11, 12, 21, 22}, out.Data)
}

func TestSubset_Stations(t *testing.T) {
	f := domain.Field{
		Name: "tem",
		Unit: "K",
		Axes: []domain.Axis{
			{Name: domain.AxisTime, Values: []float64{0}},
			{Name: domain.AxisLevel, Values: []float64{0}},
			{Name: domain.AxisStation, Values: []float64{0, 1, 2}, Labels: []string{"a", "b", "c"}},
		},
		Data:   []float64{280, 290, 300},
		Mask:   []bool{false, false, true},
		Coords: []domain.Geo{{Lat: 30, Lon: 110}, {Lat: 40, Lon: 120}, {Lat: 35, Lon: 115}},
	}
	out, err := New().Compose(OpSubset, []domain.Field{f},
		Params{"lon_min": 109, "lon_max": 116, "lat_min": 29, "lat_max": 36})
	require.NoError(t, err)

	st, _ := out.Axis(domain.AxisStation)
	assert.Equal(t, []string{"a", "c"}, st.Labels)
	assert.Equal(t, []domain.Geo{{Lat: 30, Lon: 110}, {Lat: 35, Lon: 115}}, out.Coords)
	assert.Equal(t, []float64{280, 300}, out.Data)
	assert.Equal(t, []bool{false, true}, out.Mask)
}

func TestThresholdMask(t *testing.T) {
	out, err := New().Compose(OpThresholdMask, []domain.Field{single("cref", 0)}, Params{"min": 10, "max": 11})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, maskedAt(out))
	assert.Equal(t, []float64{0, 0, 10, 11}, out.Data)
}

func TestStackLevels(t *testing.T) {
	out, err := New().Compose(OpStackLevels, []domain.Field{single("u", 500), single("u", 850)}, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 2, 2}, out.Shape())
	lv, _ := out.Axis(domain.AxisLevel)
	assert.Equal(t, []float64{500, 850}, lv.Values)
	assert.Equal(t, []float64{0, 1, 10, 11, 0, 1, 10, 11}, out.Data)
}

func TestCompose_Errors(t *testing.T) {
	noLevel := domain.Field{
		Name: "x", Unit: "K",
		Axes: []domain.Axis{{Name: domain.AxisLatitude, Values: []float64{1}}, {Name: domain.AxisLongitude, Values: []float64{1}}},
		Data: []float64{1}, Mask: []bool{false},
	}
	otherGrid := grid("b", []float64{850, 700, 500}, []float64{30, 32}, []float64{110, 111})
	otherUnit := column("b")
	otherUnit.Unit = "degC"
	broken := column("bad")
	broken.Data = broken.Data[:3]
	noLongitude := grid("c", []float64{850}, []float64{30}, []float64{110})
	noLongitude.Axes = noLongitude.Axes[:3]
	stations := domain.Field{
		Name: "s", Unit: "K",
		Axes: []domain.Axis{
			{Name: domain.AxisTime, Values: []float64{0}},
			{Name: domain.AxisLevel, Values: []float64{500}},
			{Name: domain.AxisStation, Values: []float64{0, 1}, Labels: []string{"54511", "54527"}},
		},
		Data: []float64{1, 2}, Mask: []bool{false, false},
	}

	tests := []struct {
		name   string
		op     string
		inputs []domain.Field
		params Params
		want   error
	}{
		{"unknown op", "vorticity", []domain.Field{column("a")}, nil, domain.ErrInvalidParams},
		{"arity", OpDifference, []domain.Field{column("a")}, nil, domain.ErrInvalidParams},
		{"grid mismatch", OpDifference, []domain.Field{column("a"), otherGrid}, nil, domain.ErrAxisMismatch},
		{"unit mismatch", OpSum, []domain.Field{column("a"), otherUnit}, nil, domain.ErrAxisMismatch},
		{"inconsistent input", OpScale, []domain.Field{broken}, nil, domain.ErrAxisMismatch},
		{"no level axis", OpLayerAverage, []domain.Field{noLevel}, Params{"bottom": 1, "top": 2}, domain.ErrAxisMismatch},
		{"empty layer", OpLayerAverage, []domain.Field{column("a")}, Params{"bottom": 100, "top": 200}, domain.ErrAxisMismatch},
		{"missing param", OpLayerAverage, []domain.Field{column("a")}, Params{"bottom": 850}, domain.ErrInvalidParams},
		{"non-numeric param", OpScale, []domain.Field{column("a")}, Params{"factor": "two"}, domain.ErrInvalidParams},
		{"single level derivative", OpVerticalDerivative, []domain.Field{single("a", 500)}, nil, domain.ErrAxisMismatch},
		{"target outside", OpInterpolateLevel, []domain.Field{column("a")}, Params{"target": 1000}, domain.ErrAxisMismatch},
		{"unknown method", OpInterpolateLevel, []domain.Field{column("a")}, Params{"target": 600, "method": "cubic"}, domain.ErrInvalidParams},
		{"inverted extent", OpSubset, []domain.Field{column("a")}, Params{"lon_min": 120, "lon_max": 110, "lat_min": 0, "lat_max": 50}, domain.ErrInvalidParams},
		{"extent misses grid", OpSubset, []domain.Field{column("a")}, Params{"lon_min": 0, "lon_max": 10, "lat_min": 0, "lat_max": 10}, domain.ErrAxisMismatch},
		{"threshold without bounds", OpThresholdMask, []domain.Field{column("a")}, nil, domain.ErrInvalidParams},
		{"stack multi-level", OpStackLevels, []domain.Field{column("a")}, nil, domain.ErrAxisMismatch},
		{"stack repeated level", OpStackLevels, []domain.Field{single("a", 500), single("b", 500)}, nil, domain.ErrAxisMismatch},
		{"stack fewer axes", OpStackLevels, []domain.Field{single("a", 500), noLongitude}, nil, domain.ErrAxisMismatch},
		{"stack more axes", OpStackLevels, []domain.Field{stations, single("b", 850)}, nil, domain.ErrAxisMismatch},
		{"derivative non-monotonic levels", OpVerticalDerivative, []domain.Field{grid("t", []float64{500, 850, 500}, []float64{30}, []float64{110})}, nil, domain.ErrAxisMismatch},
		{"derivative repeated level", OpVerticalDerivative, []domain.Field{grid("t", []float64{850, 850}, []float64{30}, []float64{110})}, nil, domain.ErrAxisMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New().Compose(tc.op, tc.inputs, tc.params)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestOperations(t *testing.T) {
	assert.Equal(t, []string{
		OpDifference, OpInterpolateLevel, OpLayerAverage, OpScale, OpStackLevels,
		OpSubset, OpSum, OpThresholdMask, OpVerticalDerivative, OpWindSpeed,
	}, New().Operations())
}
