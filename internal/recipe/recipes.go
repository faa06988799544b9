package recipe

import (
	"context"
	"fmt"
	"math"

	"github.com/couchcryptid/met-diagnostics-etl/internal/compose"
	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
)

// Recipe names.
const (
	GH500UV850MSLP     = "gh500_uv850_mslp"
	QPF24h             = "qpf_24h"
	CREFUV850          = "cref_uv850"
	CREFUV850Compare   = "cref_uv850_compare"
	StationTemperature = "station_temperature"
)

const projectionAlbers = "albers_equal_area"

var (
	globalModels = []string{"ECMWF", "GRAPES", "NCEP"}
	mesoModels   = []string{"SHANGHAI", "BEIJING", "GRAPES_MESO", "GRAPES_3KM"}

	// synopticExtent covers East Asia: lon 50..150, lat 0..65.
	synopticExtent = domain.Extent{LonMin: 50, LonMax: 150, LatMin: 0, LatMax: 65}

	defaultCenter = domain.Geo{Lon: 117, Lat: 39}

	qpfLevels = []float64{0.1, 10, 25, 50, 100, 250}
	qpfColors = []string{"#88F492", "#00A929", "#2AB8FF", "#1202FC", "#FF04F4", "#850C3E"}
)

const (
	defaultMapWidth = 12
	crefMinDBZ      = 10
	reflectivityMap = "NWSReflectivity"
)

func builtin() []Recipe {
	return []Recipe{
		{Name: GH500UV850MSLP, Models: globalModels, DefaultModel: "ECMWF", Build: buildGH500UV850MSLP},
		{Name: QPF24h, Models: []string{"ECMWF"}, DefaultModel: "ECMWF", Build: buildQPF24h},
		{Name: CREFUV850, Models: mesoModels, DefaultModel: "SHANGHAI", Build: buildCREFUV850},
		{Name: CREFUV850Compare, Build: buildCREFUV850Compare},
		{Name: StationTemperature, Build: buildStationTemperature},
	}
}

// mapWindow returns the request's map centre and the extent around it.
// latRatio scales the latitude span relative to the longitude span.
func mapWindow(req domain.ChartRequest, latRatio float64) (domain.Geo, domain.Extent) {
	center := defaultCenter
	if req.MapCenter != nil {
		center = *req.MapCenter
	}
	width := req.MapWidth
	if width <= 0 {
		width = defaultMapWidth
	}
	return center, domain.ExtentAround(center.Lon, center.Lat, width, latRatio)
}

func buildGH500UV850MSLP(ctx context.Context, r *Run) (domain.ChartPayload, error) {
	ext := synopticExtent
	gh, err := r.Grid(ctx, r.Model, "hgt", 500, ext)
	if err != nil {
		return domain.ChartPayload{}, err
	}
	u, err := r.Grid(ctx, r.Model, "u", 850, ext)
	if err != nil {
		return domain.ChartPayload{}, err
	}
	v, err := r.Grid(ctx, r.Model, "v", 850, ext)
	if err != nil {
		return domain.ChartPayload{}, err
	}
	mslp, err := r.Grid(ctx, r.Model, "mslp", 0, ext)
	if err != nil {
		return domain.ChartPayload{}, err
	}
	wspd, err := r.Compose(compose.OpWindSpeed, compose.Params{"name": "wspd850"}, u, v)
	if err != nil {
		return domain.ChartPayload{}, err
	}

	return domain.ChartPayload{
		Title: "500-hPa Heights (m), 850-hPa Winds, MSLP (hPa)",
		Fields: map[string]domain.Field{
			"gh500":   gh,
			"u850":    u,
			"v850":    v,
			"wspd850": wspd,
			"mslp":    mslp,
		},
		Chart: domain.ChartConfig{
			Projection:  projectionAlbers,
			CentralLon:  100,
			CentralLat:  45,
			Extent:      ext,
			RegridShape: 20,
		},
	}, nil
}

func buildQPF24h(ctx context.Context, r *Run) (domain.ChartPayload, error) {
	center, ext := mapWindow(r.Request, 1)
	rain, err := r.Grid(ctx, r.Model, "rain24", 0, ext)
	if err != nil {
		return domain.ChartPayload{}, err
	}
	cropped, err := r.Subset(ext, rain)
	if err != nil {
		return domain.ChartPayload{}, err
	}

	return domain.ChartPayload{
		Title:  "24h accumulated QPF",
		Fields: map[string]domain.Field{"rain24": cropped[0]},
		Chart: domain.ChartConfig{
			Projection:    projectionAlbers,
			CentralLon:    center.Lon,
			CentralLat:    center.Lat,
			Extent:        ext,
			ContourLevels: qpfLevels,
			Colors:        qpfColors,
		},
	}, nil
}

// crefFields fetches one meso model's reflectivity, and its 850 hPa wind when
// asked, cropped to ext. Keys get suffix appended.
func crefFields(ctx context.Context, r *Run, model string, ext domain.Extent, suffix string) (map[string]domain.Field, error) {
	cref, err := r.Grid(ctx, model, "cref", 0, ext)
	if err != nil {
		return nil, err
	}
	cref, err = r.Compose(compose.OpThresholdMask, compose.Params{"min": crefMinDBZ}, cref)
	if err != nil {
		return nil, err
	}
	fields := []domain.Field{cref}
	if r.Request.DrawWind {
		u, err := r.Grid(ctx, model, "u", 850, ext)
		if err != nil {
			return nil, err
		}
		v, err := r.Grid(ctx, model, "v", 850, ext)
		if err != nil {
			return nil, err
		}
		fields = append(fields, u, v)
	}
	cropped, err := r.Subset(ext, fields...)
	if err != nil {
		return nil, err
	}

	out := map[string]domain.Field{"cref" + suffix: cropped[0]}
	if len(cropped) == 3 {
		out["u850"+suffix] = cropped[1]
		out["v850"+suffix] = cropped[2]
	}
	return out, nil
}

func crefChart(center domain.Geo, ext domain.Extent) domain.ChartConfig {
	return domain.ChartConfig{
		Projection: projectionAlbers,
		CentralLon: center.Lon,
		CentralLat: center.Lat,
		Extent:     ext,
		Colormap:   reflectivityMap,
	}
}

func buildCREFUV850(ctx context.Context, r *Run) (domain.ChartPayload, error) {
	center, ext := mapWindow(r.Request, 2.0/3.0)
	fields, err := crefFields(ctx, r, r.Model, ext, "")
	if err != nil {
		return domain.ChartPayload{}, err
	}
	return domain.ChartPayload{
		Title:  "Composite Reflectivity (dBZ), 850-hPa Winds",
		Fields: fields,
		Chart:  crefChart(center, ext),
	}, nil
}

// buildCREFUV850Compare puts the four meso models side by side; field keys
// carry the model name, e.g. "cref_BEIJING".
func buildCREFUV850Compare(ctx context.Context, r *Run) (domain.ChartPayload, error) {
	center, ext := mapWindow(r.Request, 2.0/3.0)
	all := map[string]domain.Field{}
	for _, model := range mesoModels {
		fields, err := crefFields(ctx, r, model, ext, "_"+model)
		if err != nil {
			return domain.ChartPayload{}, fmt.Errorf("%s: %w", model, err)
		}
		for k, f := range fields {
			all[k] = f
		}
	}
	return domain.ChartPayload{
		Title:  "CREF (dBZ), 850-hPa Winds",
		Model:  "MESO",
		Fields: all,
		Chart:  crefChart(center, ext),
	}, nil
}

// buildStationTemperature charts observed temperature at the requested
// stations, or at every station inside the map window when none are listed.
// Without an explicit window the observation time is the request's
// initial time.
func buildStationTemperature(ctx context.Context, r *Run) (domain.ChartPayload, error) {
	req := r.Request
	end := req.WindowEnd
	if end.IsZero() {
		end = req.InitTime
	}
	start := req.WindowStart
	if start.IsZero() {
		start = end
	}

	var ext domain.Extent
	if len(req.Stations) == 0 || req.MapCenter != nil {
		_, ext = mapWindow(req, 1)
	}
	t2m, err := r.Stations(ctx, "tem", req.Stations, start, end, ext)
	if err != nil {
		return domain.ChartPayload{}, err
	}
	if !ext.IsZero() {
		cropped, err := r.Subset(ext, t2m)
		if err != nil {
			return domain.ChartPayload{}, err
		}
		t2m = cropped[0]
	}
	celsius, err := r.Compose(compose.OpScale,
		compose.Params{"offset": -273.15, "unit": "degC", "name": "t2m_degC"}, t2m)
	if err != nil {
		return domain.ChartPayload{}, err
	}

	if ext.IsZero() {
		ext = stationBounds(t2m.Coords, 1)
	}
	return domain.ChartPayload{
		Title:     "Station 2-m Temperature",
		Model:     "OBS",
		ValidTime: end,
		Fields:    map[string]domain.Field{"t2m": t2m, "t2m_degC": celsius},
		Chart: domain.ChartConfig{
			Projection: projectionAlbers,
			CentralLon: (ext.LonMin + ext.LonMax) / 2,
			CentralLat: (ext.LatMin + ext.LatMax) / 2,
			Extent:     ext,
		},
	}, nil
}

// stationBounds is the bounding box of the stations padded by pad degrees.
func stationBounds(coords []domain.Geo, pad float64) domain.Extent {
	ext := domain.Extent{LonMin: math.Inf(1), LonMax: math.Inf(-1), LatMin: math.Inf(1), LatMax: math.Inf(-1)}
	for _, c := range coords {
		ext.LonMin = min(ext.LonMin, c.Lon)
		ext.LonMax = max(ext.LonMax, c.Lon)
		ext.LatMin = min(ext.LatMin, c.Lat)
		ext.LatMax = max(ext.LatMax, c.Lat)
	}
	if len(coords) == 0 {
		return domain.Extent{}
	}
	ext.LonMin -= pad
	ext.LonMax += pad
	ext.LatMin -= pad
	ext.LatMax += pad
	return ext
}
