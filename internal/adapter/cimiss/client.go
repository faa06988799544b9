// Package cimiss implements source.Connector against the CIMISS MUSIC REST
// interface for station observations.
package cimiss

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/met-diagnostics-etl/internal/catalog"
	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
	"golang.org/x/time/rate"
)

const (
	interfaceByStation = "getSurfEleByTimeRangeAndStaID"
	interfaceInRect    = "getSurfEleInRectByTimeRange"

	// timeLayout is the CIMISS yyyyMMddHHmmss timestamp.
	timeLayout = "20060102150405"

	maxBodyBytes = 32 << 20
)

// baseElements are always requested alongside the variable's element.
var baseElements = []string{"Station_Id_C", "Lat", "Lon", "Datetime"}

// Client queries station observations, one MUSIC call per Fetch.
type Client struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxBody    int64
	catalog    *catalog.Catalog
	logger     *slog.Logger
}

// NewClient creates a CIMISS client.
func NewClient(baseURL, user, password string, timeout time.Duration, ratePerSec float64, cat *catalog.Catalog, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		user:     user,
		password: password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		maxBody: maxBodyBytes,
		catalog: cat,
		logger:  logger,
	}
}

// Fetch queries observations for the request's stations or extent over its
// time window.
func (c *Client) Fetch(ctx context.Context, spec domain.RequestSpec) (domain.RawResponse, error) {
	entry, err := c.catalog.Lookup(domain.SourceCIMISS, spec.Model, spec.Variable)
	if err != nil {
		return domain.RawResponse{}, err
	}

	params := url.Values{
		"userId":     {c.user},
		"pwd":        {c.password},
		"dataCode":   {entry.DataCode},
		"elements":   {strings.Join(append(append([]string{}, baseElements...), entry.Element), ",")},
		"dataFormat": {"json"},
	}

	start, end := spec.Time.Start, spec.Time.End
	if !spec.Time.IsWindow() {
		start = spec.Time.ValidTime()
		end = start
	}
	params.Set("timeRange", fmt.Sprintf("[%s,%s]", start.UTC().Format(timeLayout), end.UTC().Format(timeLayout)))

	if len(spec.Stations) > 0 {
		params.Set("interfaceId", interfaceByStation)
		params.Set("staIds", strings.Join(spec.Stations, ","))
	} else {
		params.Set("interfaceId", interfaceInRect)
		params.Set("minLat", formatCoord(spec.Extent.LatMin))
		params.Set("maxLat", formatCoord(spec.Extent.LatMax))
		params.Set("minLon", formatCoord(spec.Extent.LonMin))
		params.Set("maxLon", formatCoord(spec.Extent.LonMax))
	}

	body, err := c.get(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return domain.RawResponse{}, err
	}
	if err := checkReturnCode(body); err != nil {
		return domain.RawResponse{}, err
	}

	return domain.RawResponse{
		Source:    domain.SourceCIMISS,
		Format:    domain.FormatCIMISSJSON,
		Variable:  spec.Variable,
		Time:      spec.Time,
		Body:      body,
		FetchedAt: domain.Now(),
	}, nil
}

func (c *Client) get(ctx context.Context, fullURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", domain.ErrSourceUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Strip the query from the error; it carries credentials.
		return nil, fmt.Errorf("%w: cimiss request: %s", domain.ErrSourceUnavailable, redact(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: cimiss server error: status %d: %s",
			domain.ErrSourceUnavailable, resp.StatusCode, bytes.TrimSpace(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read cimiss body: %w", domain.ErrSourceUnavailable, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: cimiss body exceeds %d bytes", domain.ErrMalformedResponse, c.maxBody)
	}
	c.logger.Debug("cimiss query complete", "bytes", len(body))
	return body, nil
}

// envelope is the part of every MUSIC response that reports query status.
type envelope struct {
	ReturnCode    json.Number `json:"returnCode"`
	ReturnMessage string      `json:"returnMessage"`
}

func checkReturnCode(body []byte) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: cimiss response is not json: %w", domain.ErrMalformedResponse, err)
	}
	if env.ReturnCode == "" {
		return fmt.Errorf("%w: cimiss response has no returnCode", domain.ErrMalformedResponse)
	}
	if env.ReturnCode != "0" {
		return fmt.Errorf("%w: cimiss returnCode %s: %s", domain.ErrSourceUnavailable, env.ReturnCode, env.ReturnMessage)
	}
	return nil
}

func formatCoord(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

func redact(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Op + ": " + uerr.Err.Error()
	}
	return err.Error()
}
