package fixture

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"
)

// Station is one surface observing site.
type Station struct {
	ID       string
	Lat, Lon float64
}

// Stations are the sites the fixture server reports on.
var Stations = []Station{
	{ID: "54511", Lat: 39.80, Lon: 116.47},
	{ID: "54527", Lat: 39.08, Lon: 117.07},
	{ID: "53698", Lat: 38.03, Lon: 114.42},
	{ID: "54823", Lat: 36.60, Lon: 117.05},
	{ID: "58362", Lat: 31.40, Lon: 121.45},
}

// notObserved marks the record the fixture leaves empty.
const notObserved = "999999"

// quietStation reports nothing at the first hour of every window.
const quietStation = "53698"

// StationRecords renders a MUSIC response for element at every hour in
// [start, end]. ids narrows the sites; empty means all of them.
func StationRecords(element string, ids []string, start, end time.Time) ([]byte, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("station records: window ends %s before it starts %s", end, start)
	}
	sites := Stations
	if len(ids) > 0 {
		sites = nil
		for _, s := range Stations {
			if slices.Contains(ids, s.ID) {
				sites = append(sites, s)
			}
		}
	}

	records := []map[string]string{}
	for t := start.UTC(); !t.After(end); t = t.Add(time.Hour) {
		for _, s := range sites {
			v := strconv.FormatFloat(observed(element, s, t), 'f', 1, 64)
			if s.ID == quietStation && t.Equal(start.UTC()) {
				v = notObserved
			}
			records = append(records, map[string]string{
				"Station_Id_C": s.ID,
				"Lat":          strconv.FormatFloat(s.Lat, 'f', -1, 64),
				"Lon":          strconv.FormatFloat(s.Lon, 'f', -1, 64),
				"Datetime":     t.Format("2006-01-02 15:04:05"),
				element:        v,
			})
		}
	}

	return json.Marshal(map[string]any{
		"returnCode":    "0",
		"returnMessage": "Query Succeed",
		"rowCount":      strconv.Itoa(len(records)),
		"DS":            records,
	})
}

// observed is a plausible reading in the unit the default catalog lists.
func observed(element string, s Station, t time.Time) float64 {
	diurnal := math.Sin(float64(t.Hour()-8) * math.Pi / 12)
	switch element {
	case "TEM":
		return 24 - 0.6*(s.Lat-30) + 5*diurnal
	case "PRS":
		return 1010 - 0.3*(s.Lat-30)
	case "RHU":
		return 60 - 20*diurnal
	case "PRE_1h":
		return 0
	case "WIN_S_Avg_2mi":
		return 3 + 2*diurnal*diurnal
	}
	return 0
}
