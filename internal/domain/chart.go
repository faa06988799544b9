package domain

import "time"

// ChartRequest asks the service to prepare the data for one diagnostic chart.
type ChartRequest struct {
	ID           string    `json:"id,omitempty"`
	Recipe       string    `json:"recipe"`
	Model        string    `json:"model,omitempty"`
	InitTime     time.Time `json:"init_time,omitzero"`
	ForecastHour int       `json:"fhour"`
	MapCenter    *Geo      `json:"map_center,omitempty"`
	MapWidth     float64   `json:"map_width,omitempty"`
	DrawWind     bool      `json:"draw_wind,omitempty"`
	Stations     []string  `json:"stations,omitempty"`
	WindowStart  time.Time `json:"window_start,omitzero"`
	WindowEnd    time.Time `json:"window_end,omitzero"`
}

// ChartConfig is passed through to the external renderer, which owns its
// full schema.
type ChartConfig struct {
	Projection    string    `json:"projection"`
	CentralLon    float64   `json:"central_lon,omitempty"`
	CentralLat    float64   `json:"central_lat,omitempty"`
	Extent        Extent    `json:"extent"`
	ContourLevels []float64 `json:"contour_levels,omitempty"`
	Colors        []string  `json:"colors,omitempty"`
	Colormap      string    `json:"colormap,omitempty"`
	RegridShape   int       `json:"regrid_shape,omitempty"`
}

// ChartPayload is everything the renderer needs to draw one chart.
type ChartPayload struct {
	RequestID    string           `json:"request_id"`
	Recipe       string           `json:"recipe"`
	Model        string           `json:"model,omitempty"`
	Title        string           `json:"title"`
	InitTime     time.Time        `json:"init_time,omitzero"`
	ValidTime    time.Time        `json:"valid_time"`
	ForecastHour int              `json:"fhour"`
	Fields       map[string]Field `json:"fields"`
	Chart        ChartConfig      `json:"chart"`
	ProducedAt   time.Time        `json:"produced_at"`
}
