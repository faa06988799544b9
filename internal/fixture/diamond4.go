package fixture

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

// valuesPerLine wraps the value block the way MICAPS writers do; readers
// ignore line breaks.
const valuesPerLine = 10

// Grid is one diamond 4 file. Values are row-major from (Lat0, Lon0), one
// row per latitude.
type Grid struct {
	Description  string
	Init         time.Time
	ForecastHour int
	Level        float64
	Lon0, Lat0   float64
	DLon, DLat   float64
	NLon, NLat   int
	Values       []float64
}

// EncodeDiamond4 writes g as a MICAPS diamond 4 text grid.
func EncodeDiamond4(w io.Writer, g Grid) error {
	if g.NLon <= 0 || g.NLat <= 0 {
		return fmt.Errorf("encode diamond 4: invalid grid size %dx%d", g.NLat, g.NLon)
	}
	if len(g.Values) != g.NLon*g.NLat {
		return fmt.Errorf("encode diamond 4: grid %dx%d needs %d values, have %d",
			g.NLat, g.NLon, g.NLon*g.NLat, len(g.Values))
	}

	bw := bufio.NewWriter(w)
	init := g.Init.UTC()
	fmt.Fprintf(bw, "diamond 4 %s\n", g.Description)
	fmt.Fprintf(bw, "%02d %d %d %d %d %s\n",
		init.Year()%100, init.Month(), init.Day(), init.Hour(), g.ForecastHour, num(g.Level))
	fmt.Fprintf(bw, "%s %s %s %s %s %s %d %d\n",
		num(g.DLon), num(g.DLat),
		num(g.Lon0), num(g.Lon0+float64(g.NLon-1)*g.DLon),
		num(g.Lat0), num(g.Lat0+float64(g.NLat-1)*g.DLat),
		g.NLon, g.NLat)
	lo, hi := bounds(g.Values)
	fmt.Fprintf(bw, "%s %s %s 1 0\n", num(contourInterval(lo, hi)), num(lo), num(hi))

	for i, v := range g.Values {
		bw.WriteString(num(v))
		if (i+1)%valuesPerLine == 0 || i == len(g.Values)-1 {
			bw.WriteByte('\n')
		} else {
			bw.WriteByte(' ')
		}
	}
	return bw.Flush()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func contourInterval(lo, hi float64) float64 {
	if hi <= lo {
		return 1
	}
	return math.Floor((hi-lo)/10) + 1
}

// bounds returns the smallest and largest non-missing values.
func bounds(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if v == missing {
			continue
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return 0, 0
	}
	return lo, hi
}
