package fixture

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const cimissTimeLayout = "20060102150405"

// NewServer serves a fixture tree the way the upstream services do: MICAPS
// files under /micaps/ and MUSIC station queries at /cimiss.
func NewServer(dir string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /micaps/", http.StripPrefix("/micaps/", http.FileServer(http.Dir(dir))))
	mux.HandleFunc("GET /cimiss", handleMUSIC)
	return mux
}

// handleMUSIC answers station queries. Rectangle queries return every site;
// callers crop by coordinates.
func handleMUSIC(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	w.Header().Set("Content-Type", "application/json")

	start, end, err := parseTimeRange(q.Get("timeRange"))
	if err != nil {
		fmt.Fprintf(w, `{"returnCode":"-1","returnMessage":%q}`, err.Error())
		return
	}
	elements := strings.Split(q.Get("elements"), ",")
	element := elements[len(elements)-1]

	var ids []string
	if s := q.Get("staIds"); s != "" {
		ids = strings.Split(s, ",")
	}
	body, err := StationRecords(element, ids, start, end)
	if err != nil {
		fmt.Fprintf(w, `{"returnCode":"-1","returnMessage":%q}`, err.Error())
		return
	}
	w.Write(body) //nolint:errcheck // best-effort response
}

// parseTimeRange reads "[yyyyMMddHHmmss,yyyyMMddHHmmss]".
func parseTimeRange(s string) (time.Time, time.Time, error) {
	from, to, ok := strings.Cut(strings.Trim(s, "[]"), ",")
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("bad timeRange %q", s)
	}
	start, err := time.Parse(cimissTimeLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad timeRange start: %w", err)
	}
	end, err := time.Parse(cimissTimeLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad timeRange end: %w", err)
	}
	return start, end, nil
}
