package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/i474232898/weather-heatmap/internal/weather"
)

const openMeteoTimeLayout = "2006-01-02T15:04"

// OpenMeteoProvider implements weather.Gatherer for the Open-Meteo hourly forecast API.
type OpenMeteoProvider struct {
	sequentialGatherer
	baseURL string
	now     func() time.Time
}

func NewOpenMeteoProvider(client *http.Client, opts Options) *OpenMeteoProvider {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.open-meteo.com/v1/forecast"
	}

	return &OpenMeteoProvider{
		sequentialGatherer: sequentialGatherer{
			name:    "OpenMeteo",
			delay:   opts.RequestDelay,
			httpCfg: httpConfig(client, opts),
			circuit: newCircuitBreaker("openmeteo"),
		},
		baseURL: baseURL,
		now:     time.Now,
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) Conditions() []weather.Condition {
	return []weather.Condition{
		{ID: "cloud_cover", Name: "Cloud cover", Upstream: "cloud_cover", Unit: "%", Min: 0, Max: 100},
		{ID: "temperature_c", Name: "Temperature", Upstream: "temperature_2m", Unit: "°C", Min: weather.DynamicBound, Max: weather.DynamicBound},
		{ID: "relative_humidity", Name: "Relative humidity", Upstream: "relative_humidity_2m", Unit: "%", Min: 0, Max: 100},
		{ID: "cloud_cover_low", Name: "Low clouds", Upstream: "cloud_cover_low", Unit: "%", Min: 0, Max: 100},
		{ID: "cloud_cover_mid", Name: "Mid-level clouds", Upstream: "cloud_cover_mid", Unit: "%", Min: 0, Max: 100},
		{ID: "cloud_cover_high", Name: "High clouds", Upstream: "cloud_cover_high", Unit: "%", Min: 0, Max: 100},
		{ID: "dew_point_c", Name: "Dew point", Upstream: "dew_point_2m", Unit: "°C", Min: weather.DynamicBound, Max: weather.DynamicBound},
		{ID: "air_pressure", Name: "Air pressure", Upstream: "pressure_msl", Unit: "hPa", Min: weather.DynamicBound, Max: weather.DynamicBound},
		{ID: "precipitation_value", Name: "Precipitation", Upstream: "precipitation", Unit: "mm", Min: 0, Max: weather.DynamicBound},
		{ID: "precipitation_probability", Name: "Precipitation probability", Upstream: "precipitation_probability", Unit: "%", Min: 0, Max: 100},
		{ID: "visibility", Name: "Visibility", Upstream: "visibility", Unit: "m", Min: weather.DynamicBound, Max: weather.DynamicBound},
		{ID: "uv_index", Name: "UV index", Upstream: "uv_index", Unit: "", Min: 0, Max: 11},
	}
}

// Gather requests forecastHours+1 hourly values (the current hour included) per sample.
func (p *OpenMeteoProvider) Gather(ctx context.Context, region weather.Region, cond weather.Condition, forecastHours int, progress *weather.Tracker) ([]weather.Record, error) {
	cond, err := weather.LookupCondition(p, cond.ID)
	if err != nil {
		return nil, err
	}

	hours := forecastHours + 1
	first := currentHour(p.now(), region.Timezone)

	coords := weather.SampleGrid(region)
	requests := make([]hourlyRequest, 0, len(coords))
	for _, c := range coords {
		c := c
		requests = append(requests, hourlyRequest{
			coord: c,
			first: first,
			hours: hours,
			build: func() (*http.Request, error) {
				values := url.Values{}
				values.Set("latitude", strconv.FormatFloat(c.Lat, 'f', -1, 64))
				values.Set("longitude", strconv.FormatFloat(c.Lon, 'f', -1, 64))
				values.Set("hourly", cond.Upstream)
				values.Set("forecast_hours", strconv.Itoa(hours))
				values.Set("timezone", region.Timezone)

				u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
				return http.NewRequest(http.MethodGet, u, nil)
			},
		})
	}

	return p.run(ctx, cond, requests, func(body io.Reader, _ hourlyRequest) ([]weather.Record, error) {
		return decodeOpenMeteo(body, cond.Upstream)
	}, progress)
}

func decodeOpenMeteo(body io.Reader, field string) ([]weather.Record, error) {
	var payload struct {
		UTCOffsetSeconds int                        `json:"utc_offset_seconds"`
		Hourly           map[string]json.RawMessage `json:"hourly"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, err
	}

	rawTimes, ok := payload.Hourly["time"]
	if !ok {
		return nil, fmt.Errorf("response has no hourly time series")
	}
	rawValues, ok := payload.Hourly[field]
	if !ok {
		return nil, fmt.Errorf("response has no hourly %q series", field)
	}

	var times []string
	if err := json.Unmarshal(rawTimes, &times); err != nil {
		return nil, fmt.Errorf("hourly time: %w", err)
	}
	var values []*float64
	if err := json.Unmarshal(rawValues, &values); err != nil {
		return nil, fmt.Errorf("hourly %s: %w", field, err)
	}
	if len(values) != len(times) {
		return nil, fmt.Errorf("hourly %s has %d values for %d timestamps", field, len(values), len(times))
	}

	// Open-Meteo reports wall-clock times in the requested timezone.
	zone := time.FixedZone("", payload.UTCOffsetSeconds)

	records := make([]weather.Record, 0, len(times))
	for i, s := range times {
		ts, err := time.ParseInLocation(openMeteoTimeLayout, s, zone)
		if err != nil {
			return nil, fmt.Errorf("hourly time %q: %w", s, err)
		}
		r := weather.Record{Time: ts.UTC()}
		if values[i] == nil {
			r.Error = true
		} else {
			r.Value = *values[i]
		}
		records = append(records, r)
	}
	return records, nil
}
