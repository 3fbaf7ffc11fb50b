package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/skysched/flightwx/internal/types"
)

const (
	openMeteoName = "open-meteo"

	// visibility arrives in meters; readings are normalized to statute miles.
	metersPerStatuteMile = 1609.34
)

// OpenMeteoProvider is the primary provider. Its hourly forecast endpoint
// supports future-time lookups, which the reschedule pipeline relies on.
type OpenMeteoProvider struct {
	baseURL string
	client  *http.Client
}

// NewOpenMeteoProvider creates the provider with an explicit request timeout.
func NewOpenMeteoProvider(baseURL string, timeout time.Duration) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider identifier used in cache keys and readings.
func (p *OpenMeteoProvider) Name() string { return openMeteoName }

type openMeteoResponse struct {
	Hourly struct {
		Time             []int64   `json:"time"`
		Temperature2m    []float64 `json:"temperature_2m"`
		RelativeHumidity []float64 `json:"relative_humidity_2m"`
		SurfacePressure  []float64 `json:"surface_pressure"`
		Visibility       []float64 `json:"visibility"`
		WindSpeed10m     []float64 `json:"wind_speed_10m"`
		WindDirection10m []float64 `json:"wind_direction_10m"`
		WeatherCode      []int     `json:"weather_code"`
	} `json:"hourly"`
}

// Fetch retrieves the forecast hour closest to at for the coordinate.
func (p *OpenMeteoProvider) Fetch(ctx context.Context, coord types.Coordinate, at time.Time) (*types.WeatherReading, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", coord.Lat))
	q.Set("longitude", fmt.Sprintf("%.4f", coord.Lon))
	q.Set("hourly", "temperature_2m,relative_humidity_2m,surface_pressure,visibility,wind_speed_10m,wind_direction_10m,weather_code")
	q.Set("wind_speed_unit", "kn")
	q.Set("timeformat", "unixtime")
	q.Set("forecast_days", "8")

	reqURL := fmt.Sprintf("%s/forecast?%s", p.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open-meteo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("open-meteo returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed openMeteoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Hourly.Time) == 0 {
		return nil, fmt.Errorf("open-meteo returned no hourly data")
	}

	idx := closestHour(parsed.Hourly.Time, at)

	reading := &types.WeatherReading{
		Coord:        coord,
		Timestamp:    time.Unix(parsed.Hourly.Time[idx], 0).UTC(),
		VisibilitySM: hourlyAt(parsed.Hourly.Visibility, idx) / metersPerStatuteMile,
		WindSpeedKts: hourlyAt(parsed.Hourly.WindSpeed10m, idx),
		WindDirDeg:   hourlyAt(parsed.Hourly.WindDirection10m, idx),
		TemperatureC: hourlyAt(parsed.Hourly.Temperature2m, idx),
		HumidityPct:  hourlyAt(parsed.Hourly.RelativeHumidity, idx),
		PressureHpa:  hourlyAt(parsed.Hourly.SurfacePressure, idx),
		Source:       openMeteoName,
		Raw:          body,
	}
	if idx < len(parsed.Hourly.WeatherCode) {
		reading.Conditions = conditionsFromWMOCode(parsed.Hourly.WeatherCode[idx])
	}
	return reading, nil
}

// closestHour returns the index of the unix hour nearest to at.
func closestHour(times []int64, at time.Time) int {
	target := at.Unix()
	best := 0
	bestDiff := int64(math.MaxInt64)
	for i, t := range times {
		diff := t - target
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best
}

func hourlyAt(vals []float64, idx int) float64 {
	if idx >= len(vals) {
		return 0
	}
	return vals[idx]
}

// conditionsFromWMOCode maps WMO weather interpretation codes to normalized
// condition tags.
func conditionsFromWMOCode(code int) []types.Condition {
	switch {
	case code == 0:
		return []types.Condition{types.CondClear}
	case code <= 3:
		return []types.Condition{types.CondClouds}
	case code == 45 || code == 48:
		return []types.Condition{types.CondFog}
	case code >= 51 && code <= 57:
		return []types.Condition{types.CondDrizzle}
	case code >= 61 && code <= 65:
		return []types.Condition{types.CondRain}
	case code == 66 || code == 67:
		return []types.Condition{types.CondRain, types.CondIcing}
	case code >= 71 && code <= 77:
		return []types.Condition{types.CondSnow}
	case code >= 80 && code <= 82:
		return []types.Condition{types.CondRain}
	case code == 85 || code == 86:
		return []types.Condition{types.CondSnow}
	case code == 95:
		return []types.Condition{types.CondThunderstorm}
	case code == 96 || code == 99:
		return []types.Condition{types.CondThunderstorm, types.CondHail}
	default:
		return []types.Condition{types.CondClouds}
	}
}
