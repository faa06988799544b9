package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
)

// gridJSON is a self-describing grid. Data is row-major over Dims; null
// cells are missing.
type gridJSON struct {
	Name         string                     `json:"name"`
	Units        string                     `json:"units"`
	Dims         []string                   `json:"dims"`
	Coords       map[string]json.RawMessage `json:"coords"`
	Data         []*float64                 `json:"data"`
	MissingValue *float64                   `json:"missing_value"`
	ValidTime    *time.Time                 `json:"valid_time"`
	Level        *float64                   `json:"level"`
}

func decodeGridJSON(body []byte) (*decoded, error) {
	var g gridJSON
	if err := json.Unmarshal(body, &g); err != nil {
		return nil, err
	}
	if len(g.Dims) == 0 {
		return nil, errors.New("grid has no dims")
	}

	d := &decoded{name: g.Name, unit: g.Units}
	for _, dim := range g.Dims {
		raw, ok := g.Coords[dim]
		if !ok {
			return nil, fmt.Errorf("dim %q has no coordinates", dim)
		}
		axis, err := gridAxis(dim, raw)
		if err != nil {
			return nil, err
		}
		d.axes = append(d.axes, axis)
	}
	if len(g.Data) != d.size() {
		return nil, fmt.Errorf("dims %v need %d values, have %d", g.Dims, d.size(), len(g.Data))
	}

	d.data = make([]float64, len(g.Data))
	for i, v := range g.Data {
		if v == nil {
			d.data[i] = math.NaN()
			continue
		}
		d.data[i] = *v
	}
	if g.MissingValue != nil {
		d.sentinels = append(d.sentinels, *g.MissingValue)
	}
	if g.ValidTime != nil {
		d.validTime = g.ValidTime.UTC()
	}
	if g.Level != nil {
		d.level, d.hasLevel = *g.Level, true
	}
	return d, nil
}

// gridAxis decodes one coordinate list. Numbers are taken as is; strings
// must be RFC 3339 timestamps and become Unix seconds.
func gridAxis(name string, raw json.RawMessage) (domain.Axis, error) {
	var nums []float64
	if err := json.Unmarshal(raw, &nums); err == nil {
		return domain.Axis{Name: name, Values: nums}, nil
	}
	var stamps []string
	if err := json.Unmarshal(raw, &stamps); err != nil {
		return domain.Axis{}, fmt.Errorf("coordinates of %q are neither numbers nor timestamps", name)
	}
	values := make([]float64, len(stamps))
	for i, s := range stamps {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return domain.Axis{}, fmt.Errorf("coordinate %d of %q: %w", i, name, err)
		}
		values[i] = float64(t.Unix())
	}
	return domain.Axis{Name: name, Values: values}, nil
}
