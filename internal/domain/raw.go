package domain

import "time"

// Raw payload formats produced by the connectors.
const (
	// FormatMICAPS4 is the MICAPS "diamond 4" text grid.
	FormatMICAPS4 = "micaps4"
	// FormatGridJSON is a self-describing JSON grid with named dimensions.
	FormatGridJSON = "grid-json"
	// FormatCIMISSJSON is a CIMISS MUSIC station query result.
	FormatCIMISSJSON = "cimiss-json"
)

// RawResponse is the undecoded payload of one connector call. It is owned by
// the call that produced it and consumed once by the normalizer.
type RawResponse struct {
	Source    string
	Format    string
	Variable  string
	Model     string
	Level     float64
	Time      TimeSelector
	Body      []byte
	FetchedAt time.Time
}
