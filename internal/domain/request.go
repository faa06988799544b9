package domain

import (
	"fmt"
	"slices"
	"time"
)

// Source names understood by the connector router.
const (
	SourceMICAPS = "micaps"
	SourceCIMISS = "cimiss"
)

// Extent is a longitude/latitude bounding box in degrees.
type Extent struct {
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
}

// IsZero reports whether no extent was given.
func (e Extent) IsZero() bool {
	return e == Extent{}
}

// Validate checks ordering and geographic bounds.
func (e Extent) Validate() error {
	if e.LonMin >= e.LonMax {
		return fmt.Errorf("%w: lon_min %g >= lon_max %g", ErrInvalidSelector, e.LonMin, e.LonMax)
	}
	if e.LatMin >= e.LatMax {
		return fmt.Errorf("%w: lat_min %g >= lat_max %g", ErrInvalidSelector, e.LatMin, e.LatMax)
	}
	if e.LatMin < -90 || e.LatMax > 90 {
		return fmt.Errorf("%w: latitude outside [-90, 90]", ErrInvalidSelector)
	}
	if e.LonMin < -180 || e.LonMax > 360 {
		return fmt.Errorf("%w: longitude outside [-180, 360]", ErrInvalidSelector)
	}
	return nil
}

// Contains reports whether the point lies inside the extent, edges included.
func (e Extent) Contains(lat, lon float64) bool {
	return lat >= e.LatMin && lat <= e.LatMax && lon >= e.LonMin && lon <= e.LonMax
}

// ExtentAround builds a map window centred on (lon, lat). The longitude span
// is width and the latitude span is width*latRatio.
func ExtentAround(centerLon, centerLat, width, latRatio float64) Extent {
	halfLon := width / 2
	halfLat := width * latRatio / 2
	return Extent{
		LonMin: centerLon - halfLon,
		LonMax: centerLon + halfLon,
		LatMin: centerLat - halfLat,
		LatMax: centerLat + halfLat,
	}
}

// TimeSelector picks either a model run (InitTime + ForecastHour) or an
// observation window (Start..End, inclusive).
type TimeSelector struct {
	InitTime     time.Time
	ForecastHour int
	Start        time.Time
	End          time.Time
}

// IsWindow reports whether the selector describes an observation window.
func (t TimeSelector) IsWindow() bool {
	return !t.Start.IsZero() || !t.End.IsZero()
}

// ValidTime returns the instant the selected data is valid for.
func (t TimeSelector) ValidTime() time.Time {
	if t.IsWindow() {
		return t.End
	}
	return t.InitTime.Add(time.Duration(t.ForecastHour) * time.Hour)
}

func (t TimeSelector) validate() error {
	if t.IsWindow() {
		if t.Start.IsZero() || t.End.IsZero() {
			return fmt.Errorf("%w: observation window needs both start and end", ErrInvalidSelector)
		}
		if t.End.Before(t.Start) {
			return fmt.Errorf("%w: window end %s before start %s", ErrInvalidSelector,
				t.End.Format(time.RFC3339), t.Start.Format(time.RFC3339))
		}
		return nil
	}
	if t.InitTime.IsZero() {
		return fmt.Errorf("%w: empty time selector", ErrInvalidSelector)
	}
	if t.ForecastHour < 0 {
		return fmt.Errorf("%w: negative forecast hour %d", ErrInvalidSelector, t.ForecastHour)
	}
	return nil
}

// RequestSpec identifies one field to fetch from an upstream service.
// Build it with NewGridRequest or NewStationRequest and treat it as a value:
// the constructors copy their slices, and nothing downstream mutates it.
type RequestSpec struct {
	Source   string
	Model    string
	Variable string
	Levels   []float64
	Extent   Extent
	Stations []string
	Time     TimeSelector
}

// NewGridRequest describes a single model grid on one level (level 0 for
// surface or column variables).
func NewGridRequest(source, model, variable string, level float64, init time.Time, fhour int, extent Extent) RequestSpec {
	spec := RequestSpec{
		Source:   source,
		Model:    model,
		Variable: variable,
		Extent:   extent,
		Time:     TimeSelector{InitTime: init.UTC(), ForecastHour: fhour},
	}
	if level != 0 {
		spec.Levels = []float64{level}
	}
	return spec
}

// NewStationRequest describes station observations over a time window.
func NewStationRequest(source, variable string, stations []string, start, end time.Time) RequestSpec {
	return RequestSpec{
		Source:   source,
		Variable: variable,
		Stations: slices.Clone(stations),
		Time:     TimeSelector{Start: start.UTC(), End: end.UTC()},
	}
}

// Validate checks that the spatial and time selectors are usable. It never
// touches the network.
func (r RequestSpec) Validate() error {
	if r.Variable == "" {
		return fmt.Errorf("%w: variable is required", ErrUnsupportedVariable)
	}
	if r.Extent.IsZero() && len(r.Stations) == 0 {
		return fmt.Errorf("%w: empty spatial selector", ErrInvalidSelector)
	}
	if !r.Extent.IsZero() {
		if err := r.Extent.Validate(); err != nil {
			return err
		}
	}
	for _, s := range r.Stations {
		if s == "" {
			return fmt.Errorf("%w: blank station id", ErrInvalidSelector)
		}
	}
	return r.Time.validate()
}

// Level returns the single requested level, or 0 when none was given.
func (r RequestSpec) Level() float64 {
	if len(r.Levels) == 0 {
		return 0
	}
	return r.Levels[0]
}

// String renders a compact identifier for logs and provenance.
func (r RequestSpec) String() string {
	s := r.Source + ":"
	if r.Model != "" {
		s += r.Model + "/"
	}
	s += r.Variable
	if lvl := r.Level(); lvl != 0 {
		s += fmt.Sprintf("@%g", lvl)
	}
	return s
}

// ModelFilename builds the MICAPS file name for a model run:
// YYMMDDHH of the initial time plus a three-digit forecast hour,
// e.g. 18042008.024.
func ModelFilename(init time.Time, fhour int) string {
	return init.UTC().Format("06010215") + fmt.Sprintf(".%03d", fhour)
}
