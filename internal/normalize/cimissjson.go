package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
)

// CIMISS missing-value codes: 999999 "not observed", 999998 "missing".
var cimissSentinels = []float64{999999, 999998}

// cimissTimeLayout is the Datetime format of MUSIC records.
const cimissTimeLayout = "2006-01-02 15:04:05"

type cimissEnvelope struct {
	DS []map[string]string `json:"DS"`
}

// decodeCIMISS turns MUSIC records into a (time, station) grid. Stations keep
// the order of their first record; times are sorted. A station with no record
// at some time is missing there.
func decodeCIMISS(body []byte, element string) (*decoded, error) {
	if element == "" {
		return nil, errors.New("no element name for station records")
	}
	var env cimissEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if len(env.DS) == 0 {
		return nil, errors.New("no station records")
	}

	type cellKey struct {
		t   int64
		sta string
	}
	type cell struct {
		t   int64
		sta string
		v   float64
	}
	var (
		cells    []cell
		stations []string
		coords   []domain.Geo
		seen     = map[string]bool{}
		recorded = map[cellKey]bool{}
		times    []int64
	)
	for i, rec := range env.DS {
		id := rec["Station_Id_C"]
		if id == "" {
			return nil, fmt.Errorf("record %d has no Station_Id_C", i)
		}
		stamp, err := parseCIMISSTime(rec["Datetime"])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		raw, ok := rec[element]
		if !ok {
			return nil, fmt.Errorf("record %d has no %s", i, element)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			v = math.NaN()
		}
		if !seen[id] {
			seen[id] = true
			lat, err1 := strconv.ParseFloat(rec["Lat"], 64)
			lon, err2 := strconv.ParseFloat(rec["Lon"], 64)
			if err := errors.Join(err1, err2); err != nil {
				return nil, fmt.Errorf("station %s coordinates: %w", id, err)
			}
			stations = append(stations, id)
			coords = append(coords, domain.Geo{Lat: lat, Lon: lon})
		}
		if !slices.Contains(times, stamp) {
			times = append(times, stamp)
		}
		k := cellKey{t: stamp, sta: id}
		if recorded[k] {
			return nil, fmt.Errorf("record %d repeats station %s at %s", i, id, rec["Datetime"])
		}
		recorded[k] = true
		cells = append(cells, cell{t: stamp, sta: id, v: v})
	}
	slices.Sort(times)

	data := make([]float64, len(times)*len(stations))
	for i := range data {
		data[i] = math.NaN()
	}
	for _, c := range cells {
		ti, _ := slices.BinarySearch(times, c.t)
		si := slices.Index(stations, c.sta)
		data[ti*len(stations)+si] = c.v
	}

	timeAxis := domain.Axis{Name: "Datetime", Values: make([]float64, len(times))}
	for i, t := range times {
		timeAxis.Values[i] = float64(t)
	}
	staAxis := domain.Axis{Name: "Station_Id_C", Values: make([]float64, len(stations)), Labels: stations}
	for i := range stations {
		staAxis.Values[i] = float64(i)
	}

	return &decoded{
		name:      element,
		axes:      []domain.Axis{timeAxis, staAxis},
		data:      data,
		sentinels: cimissSentinels,
		coords:    coords,
	}, nil
}

func parseCIMISSTime(s string) (int64, error) {
	for _, layout := range []string{cimissTimeLayout, "20060102150405", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unparseable Datetime %q", s)
}
