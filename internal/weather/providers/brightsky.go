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

// BrightSkyProvider implements weather.Gatherer for Bright Sky, which serves
// DWD station and MOSMIX forecast data for the nearest station of a point.
type BrightSkyProvider struct {
	sequentialGatherer
	baseURL string
	now     func() time.Time
}

func NewBrightSkyProvider(client *http.Client, opts Options) *BrightSkyProvider {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.brightsky.dev/weather"
	}

	return &BrightSkyProvider{
		sequentialGatherer: sequentialGatherer{
			name:    "BrightSky",
			delay:   opts.RequestDelay,
			httpCfg: httpConfig(client, opts),
			circuit: newCircuitBreaker("brightsky"),
		},
		baseURL: baseURL,
		now:     time.Now,
	}
}

func (p *BrightSkyProvider) Name() string {
	return p.name
}

func (p *BrightSkyProvider) Conditions() []weather.Condition {
	return []weather.Condition{
		{ID: "cloud_cover", Name: "Cloud cover", Upstream: "cloud_cover", Unit: "%", Min: 0, Max: 100},
		{ID: "dew_point_c", Name: "Dew point", Upstream: "dew_point", Unit: "°C", Min: weather.DynamicBound, Max: weather.DynamicBound},
		{ID: "precipitation_probability", Name: "Precipitation probability", Upstream: "precipitation_probability", Unit: "%", Min: 0, Max: 100},
		{ID: "air_pressure", Name: "Air pressure", Upstream: "pressure_msl", Unit: "hPa", Min: weather.DynamicBound, Max: weather.DynamicBound},
		{ID: "relative_humidity", Name: "Relative humidity", Upstream: "relative_humidity", Unit: "%", Min: 0, Max: 100},
		{ID: "temperature_c", Name: "Temperature", Upstream: "temperature", Unit: "°C", Min: weather.DynamicBound, Max: weather.DynamicBound},
		{ID: "visibility", Name: "Visibility", Upstream: "visibility", Unit: "m", Min: weather.DynamicBound, Max: weather.DynamicBound},
		{ID: "wind_speed", Name: "Wind speed", Upstream: "wind_speed", Unit: "km/h", Min: 0, Max: weather.DynamicBound},
	}
}

// Gather requests the range from the current hour to forecastHours ahead, both ends included.
func (p *BrightSkyProvider) Gather(ctx context.Context, region weather.Region, cond weather.Condition, forecastHours int, progress *weather.Tracker) ([]weather.Record, error) {
	cond, err := weather.LookupCondition(p, cond.ID)
	if err != nil {
		return nil, err
	}

	start := currentHour(p.now(), region.Timezone)
	end := start.Add(time.Duration(forecastHours) * time.Hour)

	coords := weather.SampleGrid(region)
	requests := make([]hourlyRequest, 0, len(coords))
	for _, c := range coords {
		c := c
		requests = append(requests, hourlyRequest{
			coord: c,
			first: start,
			hours: forecastHours + 1,
			build: func() (*http.Request, error) {
				values := url.Values{}
				values.Set("date", start.Format(time.RFC3339))
				values.Set("last_date", end.Format(time.RFC3339))
				values.Set("lat", strconv.FormatFloat(c.Lat, 'f', -1, 64))
				values.Set("lon", strconv.FormatFloat(c.Lon, 'f', -1, 64))
				values.Set("tz", region.Timezone)

				u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
				return http.NewRequest(http.MethodGet, u, nil)
			},
		})
	}

	return p.run(ctx, cond, requests, func(body io.Reader, _ hourlyRequest) ([]weather.Record, error) {
		return decodeBrightSky(body, cond.Upstream)
	}, progress)
}

func decodeBrightSky(body io.Reader, field string) ([]weather.Record, error) {
	var payload struct {
		Weather []map[string]json.RawMessage `json:"weather"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Weather == nil {
		return nil, fmt.Errorf("response has no weather series")
	}

	records := make([]weather.Record, 0, len(payload.Weather))
	for i, entry := range payload.Weather {
		var stamp string
		if err := json.Unmarshal(entry["timestamp"], &stamp); err != nil {
			return nil, fmt.Errorf("entry %d: timestamp: %w", i, err)
		}
		ts, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			return nil, fmt.Errorf("entry %d: timestamp %q: %w", i, stamp, err)
		}

		r := weather.Record{Time: ts.UTC(), Error: true}
		if raw, ok := entry[field]; ok {
			var v *float64
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("entry %d: %s: %w", i, field, err)
			}
			if v != nil {
				r.Value, r.Error = *v, false
			}
		}
		records = append(records, r)
	}
	return records, nil
}
