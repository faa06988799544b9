package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// requestNamespace scopes the name-based UUIDs given to requests without an id.
var requestNamespace = uuid.MustParse("6f1c3c52-94a4-4d0e-8f0b-6d2b7c0b9e41")

// ParseChartRequest decodes a chart request message. The message timestamp
// stands in for a missing init time, truncated to the hour like a model run.
func ParseChartRequest(raw RawEvent) (ChartRequest, error) {
	var req ChartRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return ChartRequest{}, fmt.Errorf("parse chart request: %w", err)
	}

	req.Recipe = strings.ToLower(strings.TrimSpace(req.Recipe))
	req.Model = strings.ToUpper(strings.TrimSpace(req.Model))
	if req.Recipe == "" {
		return ChartRequest{}, fmt.Errorf("parse chart request: %w: recipe is required", ErrUnsupportedVariable)
	}
	if req.InitTime.IsZero() && !raw.Timestamp.IsZero() && req.WindowEnd.IsZero() {
		req.InitTime = raw.Timestamp.UTC().Truncate(time.Hour)
	}
	req.InitTime = req.InitTime.UTC()
	if req.ID == "" {
		req.ID = requestID(req)
	}
	return req, nil
}

// requestID derives a stable id from the request's key fields so replays of
// the same request produce the same payload key.
func requestID(req ChartRequest) string {
	var center string
	if req.MapCenter != nil {
		center = fmt.Sprintf("%g,%g", req.MapCenter.Lon, req.MapCenter.Lat)
	}
	key := fmt.Sprintf("%s|%s|%s|%03d|%s|%g|%t|%s|%s|%s",
		req.Recipe, req.Model, req.InitTime.Format(time.RFC3339), req.ForecastHour,
		center, req.MapWidth, req.DrawWind,
		strings.Join(req.Stations, ","), req.WindowStart.Format(time.RFC3339), req.WindowEnd.Format(time.RFC3339))
	return req.Recipe + "-" + uuid.NewSHA1(requestNamespace, []byte(key)).String()
}

// SerializeChartPayload marshals a payload into a sink message keyed by the
// request id.
func SerializeChartPayload(p ChartPayload) (OutputEvent, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize chart payload: %w", err)
	}
	return OutputEvent{
		Key:   []byte(p.RequestID),
		Value: data,
		Headers: map[string]string{
			"recipe":      p.Recipe,
			"model":       p.Model,
			"valid_time":  p.ValidTime.Format(time.RFC3339),
			"produced_at": p.ProducedAt.Format(time.RFC3339),
		},
	}, nil
}
