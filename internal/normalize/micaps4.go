package normalize

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
)

// micapsMissing is the MICAPS "no data" value.
const micapsMissing = 9999

// diamond4Header is the count of numeric header tokens after the
// description line: 6 time/level, 8 grid geometry, 5 contour settings.
const diamond4Header = 19

// decodeMICAPS4 parses a MICAPS diamond 4 text grid:
//
//	diamond 4 <description>
//	yy mm dd hh fhour level
//	dlon dlat lon0 lon1 lat0 lat1 nlon nlat
//	cint cstart cend smooth bold
//	v(lat0,lon0) v(lat0,lon1) ... (nlat rows of nlon values)
//
// Tokens are whitespace separated; line breaks inside the value block carry
// no meaning.
func decodeMICAPS4(body []byte) (*decoded, error) {
	first, rest, _ := bytes.Cut(body, []byte("\n"))
	head := strings.Fields(string(first))
	if len(head) < 2 || !strings.EqualFold(head[0], "diamond") || head[1] != "4" {
		return nil, errors.New("not a diamond 4 grid")
	}
	name := strings.Join(head[2:], " ")

	sc := bufio.NewScanner(bytes.NewReader(rest))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)

	var nums []float64
	for sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", len(nums)+1, err)
		}
		nums = append(nums, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(nums) < diamond4Header {
		return nil, fmt.Errorf("header has %d of %d values", len(nums), diamond4Header)
	}

	init, err := micapsTime(nums[0], nums[1], nums[2], nums[3])
	if err != nil {
		return nil, err
	}
	fhour := nums[4]
	level := nums[5]

	dlon, dlat := nums[6], nums[7]
	lon0, lon1, lat0, lat1 := nums[8], nums[9], nums[10], nums[11]
	nlon, nlat := int(nums[12]), int(nums[13])
	if nlon <= 0 || nlat <= 0 || float64(nlon) != nums[12] || float64(nlat) != nums[13] {
		return nil, fmt.Errorf("invalid grid size %vx%v", nums[12], nums[13])
	}
	if err := checkSpan("longitude", lon0, lon1, dlon, nlon); err != nil {
		return nil, err
	}
	if err := checkSpan("latitude", lat0, lat1, dlat, nlat); err != nil {
		return nil, err
	}

	values := nums[diamond4Header:]
	if len(values) != nlon*nlat {
		return nil, fmt.Errorf("grid %dx%d needs %d values, have %d", nlat, nlon, nlon*nlat, len(values))
	}

	return &decoded{
		name: name,
		axes: []domain.Axis{
			{Name: "lat", Values: series(lat0, dlat, nlat)},
			{Name: "lon", Values: series(lon0, dlon, nlon)},
		},
		data:      values,
		sentinels: []float64{micapsMissing},
		validTime: init.Add(time.Duration(fhour) * time.Hour),
		level:     level,
		hasLevel:  true,
	}, nil
}

// micapsTime resolves a diamond 4 timestamp. Two-digit years below 50 are
// 20xx, the rest 19xx; four-digit years are taken as written.
func micapsTime(yy, mm, dd, hh float64) (time.Time, error) {
	year := int(yy)
	switch {
	case year >= 1000:
	case year < 50:
		year += 2000
	default:
		year += 1900
	}
	t := time.Date(year, time.Month(int(mm)), int(dd), int(hh), 0, 0, 0, time.UTC)
	if t.Month() != time.Month(int(mm)) || t.Day() != int(dd) || t.Hour() != int(hh) {
		return time.Time{}, fmt.Errorf("invalid timestamp %v %v %v %v", yy, mm, dd, hh)
	}
	return t, nil
}

func checkSpan(axis string, start, end, step float64, n int) error {
	if n == 1 {
		return nil
	}
	if step == 0 {
		return fmt.Errorf("%s step is zero", axis)
	}
	want := start + float64(n-1)*step
	if math.Abs(want-end) > math.Abs(step)*1e-3 {
		return fmt.Errorf("%s %v + %d*%v ends at %v, header says %v", axis, start, n-1, step, want, end)
	}
	return nil
}

func series(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = roundCoord(start + float64(i)*step)
	}
	return out
}
