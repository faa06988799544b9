package normalize

import (
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/met-diagnostics-etl/internal/catalog"
	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
)

// decoded is a payload parsed into source-order axes. Missing cells hold NaN.
type decoded struct {
	name      string
	unit      string
	axes      []domain.Axis
	data      []float64
	sentinels []float64
	coords    []domain.Geo
	validTime time.Time
	level     float64
	hasLevel  bool
}

func (d *decoded) size() int {
	n := 1
	for _, a := range d.axes {
		n *= a.Len()
	}
	return n
}

func (d *decoded) shape() []int {
	s := make([]int, len(d.axes))
	for i, a := range d.axes {
		s[i] = a.Len()
	}
	return s
}

func decode(raw domain.RawResponse, entry catalog.Entry) (*decoded, error) {
	switch raw.Format {
	case domain.FormatMICAPS4:
		return decodeMICAPS4(raw.Body)
	case domain.FormatGridJSON:
		return decodeGridJSON(raw.Body)
	case domain.FormatCIMISSJSON:
		return decodeCIMISS(raw.Body, entry.Element)
	default:
		return nil, fmt.Errorf("unknown payload format %q", raw.Format)
	}
}

// roundCoord trims float noise from coordinates computed as start + i*step.
func roundCoord(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
