package fixture

import (
	"time"

	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
)

// ForecastHour is the step the fixture tree is written for.
const ForecastHour = 24

// Requests returns one chart request per built-in recipe, addressed at the
// fixture run.
func Requests(init time.Time) []domain.ChartRequest {
	init = init.UTC()
	return []domain.ChartRequest{
		{ID: "fixture-gh500", Recipe: "gh500_uv850_mslp", Model: "ECMWF", InitTime: init, ForecastHour: ForecastHour},
		{ID: "fixture-qpf", Recipe: "qpf_24h", Model: "ECMWF", InitTime: init, ForecastHour: ForecastHour,
			MapCenter: &domain.Geo{Lon: 115, Lat: 30}, MapWidth: 20},
		{ID: "fixture-cref", Recipe: "cref_uv850", Model: "BEIJING", InitTime: init, ForecastHour: ForecastHour, DrawWind: true},
		{ID: "fixture-cref-compare", Recipe: "cref_uv850_compare", InitTime: init, ForecastHour: ForecastHour},
		{ID: "fixture-stations", Recipe: "station_temperature", InitTime: init,
			WindowStart: init, WindowEnd: init.Add(2 * time.Hour)},
	}
}
