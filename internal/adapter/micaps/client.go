// Package micaps implements source.Connector against a MICAPS data server
// that serves model grids over HTTP.
package micaps

import (
	"bytes"
	"context"
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

// maxBodyBytes bounds a single grid download.
const maxBodyBytes = 64 << 20

// Client fetches one model grid file per call.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxBody    int64
	catalog    *catalog.Catalog
	logger     *slog.Logger
}

// NewClient creates a MICAPS client. Every request is bounded by timeout and
// paced to ratePerSec requests per second.
func NewClient(baseURL string, timeout time.Duration, ratePerSec float64, cat *catalog.Catalog, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		maxBody: maxBodyBytes,
		catalog: cat,
		logger:  logger,
	}
}

// Fetch downloads the grid file addressed by the request's model, variable,
// level and run time.
func (c *Client) Fetch(ctx context.Context, spec domain.RequestSpec) (domain.RawResponse, error) {
	entry, err := c.catalog.Lookup(domain.SourceMICAPS, spec.Model, spec.Variable)
	if err != nil {
		return domain.RawResponse{}, err
	}
	if spec.Time.IsWindow() {
		return domain.RawResponse{}, fmt.Errorf("%w: model grids are addressed by init time and forecast hour", domain.ErrInvalidSelector)
	}
	dir, err := entry.DataDir(spec.Level())
	if err != nil {
		return domain.RawResponse{}, err
	}

	u := fmt.Sprintf("%s/%s/%s", c.baseURL, escapePath(dir), domain.ModelFilename(spec.Time.InitTime, spec.Time.ForecastHour))
	body, contentType, err := c.get(ctx, u)
	if err != nil {
		return domain.RawResponse{}, err
	}

	return domain.RawResponse{
		Source:    domain.SourceMICAPS,
		Format:    detectFormat(contentType, body),
		Variable:  spec.Variable,
		Model:     spec.Model,
		Level:     spec.Level(),
		Time:      spec.Time,
		Body:      body,
		FetchedAt: domain.Now(),
	}, nil
}

func (c *Client) get(ctx context.Context, fullURL string) ([]byte, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("%w: rate limiter: %w", domain.ErrSourceUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: micaps request: %w", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("%w: micaps server error: status %d: %s",
			domain.ErrSourceUnavailable, resp.StatusCode, bytes.TrimSpace(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read micaps body: %w", domain.ErrSourceUnavailable, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, "", fmt.Errorf("%w: micaps body exceeds %d bytes", domain.ErrMalformedResponse, c.maxBody)
	}
	c.logger.Debug("micaps file fetched", "url", fullURL, "bytes", len(body))
	return body, resp.Header.Get("Content-Type"), nil
}

func escapePath(dir string) string {
	parts := strings.Split(dir, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// detectFormat tells a grid gateway's JSON apart from a diamond-4 text file.
func detectFormat(contentType string, body []byte) string {
	if strings.HasPrefix(contentType, "application/json") {
		return domain.FormatGridJSON
	}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		return domain.FormatGridJSON
	}
	return domain.FormatMICAPS4
}
