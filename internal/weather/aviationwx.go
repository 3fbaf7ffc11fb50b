package weather

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skysched/flightwx/internal/types"
)

const aviationWxName = "aviationweather"

// AviationWxProvider is the secondary provider. It fetches the nearest
// current METAR observation; it cannot serve future times, so the nearest
// observation stands in regardless of the requested time.
type AviationWxProvider struct {
	baseURL string
	client  *http.Client
}

// NewAviationWxProvider creates the provider with an explicit request timeout.
func NewAviationWxProvider(baseURL string, timeout time.Duration) *AviationWxProvider {
	return &AviationWxProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider identifier used in cache keys and readings.
func (p *AviationWxProvider) Name() string { return aviationWxName }

// Fetch retrieves and decodes the closest station's raw METAR within a
// half-degree box around the coordinate.
func (p *AviationWxProvider) Fetch(ctx context.Context, coord types.Coordinate, _ time.Time) (*types.WeatherReading, error) {
	q := url.Values{}
	q.Set("bbox", fmt.Sprintf("%.2f,%.2f,%.2f,%.2f", coord.Lat-0.5, coord.Lon-0.5, coord.Lat+0.5, coord.Lon+0.5))
	q.Set("format", "raw")
	q.Set("hours", "2")

	reqURL := fmt.Sprintf("%s/metar?%s", p.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aviationweather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aviationweather returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return DecodeMETAR(line, coord, time.Now().UTC())
	}
	return nil, fmt.Errorf("no METAR observation near %.2f,%.2f", coord.Lat, coord.Lon)
}
