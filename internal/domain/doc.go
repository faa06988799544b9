// Package domain models meteorological fields and chart requests flowing
// through the diagnostic data pipeline.
//
// # Data Sources
//
// Model grids come from a MICAPS data server. Each product lives under a
// directory "<MODEL_RESOLUTION>/<ELEMENT>[/<LEVEL>]", e.g. "ECMWF_LR/HGT/500",
// and each run/forecast step is one file named YYMMDDHH.FFF:
//
//	18042008.024  →  run initialised 2018-04-20 08 UTC, 24 h forecast
//
// Station observations come from the CIMISS MUSIC REST interface, which
// answers JSON with a "returnCode" (0 on success) and a "DS" list of records.
//
// # Field Conventions
//
// Every normalized [Field] uses the canonical axis order
// (time, level, latitude, longitude), or (time, level, station) for point
// data. Axes the source omits are inserted with length one. Latitude and
// longitude coordinates are ascending. Time coordinates are Unix seconds.
//
// Units are canonical: K for temperature, hPa for pressure, m for
// geopotential height, m/s for wind, mm for precipitation, dBZ for
// reflectivity.
//
// Missing values:
//
//	MICAPS writes 9999 for "no data". CIMISS uses 999999 and 999998.
//	These sentinels, NaN, and values outside a variable's valid range
//	(composite reflectivity below 10 dBZ) are masked rather than kept as numbers.
//
// The mask is contagious: any derived element that depends on a masked
// input element is itself masked.
//
// # Errors
//
// Failures are classified by the sentinels in errors.go. Only
// [ErrSourceUnavailable] is transient; see [IsRetryable].
package domain
