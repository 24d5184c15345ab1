package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/weather-heatmap/internal/render"
	"github.com/i474232898/weather-heatmap/internal/weather"
	"github.com/i474232898/weather-heatmap/internal/weather/providers"
)

type AppConfig struct {
	Port string

	// ScratchDir holds the WeatherMap working directory; it is wiped per job.
	ScratchDir string
	TileSize   int

	// Outbound provider calls.
	HTTPTimeout        time.Duration
	RequestDelay       time.Duration
	ProviderMaxRetries int
	OpenMeteoURL       string
	BrightSkyURL       string

	GeocoderAPIKey string

	// Job history retention.
	JobHistory int           // max number of jobs kept (0 = unlimited)
	JobMaxAge  time.Duration // max age of jobs (0 = unlimited)

	// RefreshInterval regenerates Refresh periodically; 0 disables it.
	RefreshInterval time.Duration
	Refresh         *weather.JobRequest
}

// WorkDir is the directory frames are written to.
func (c *AppConfig) WorkDir() string {
	return filepath.Join(c.ScratchDir, "WeatherMap")
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.ScratchDir = getenvDefault("SCRATCH_DIR", os.TempDir())
	cfg.TileSize = getenvInt("TILE_SIZE", render.DefaultTileSize)
	if cfg.TileSize <= 0 {
		return nil, fmt.Errorf("invalid TILE_SIZE: %d", cfg.TileSize)
	}

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.RequestDelay, err = getenvDuration("REQUEST_DELAY", providers.DefaultRequestDelay.String()); err != nil {
		return nil, err
	}
	cfg.ProviderMaxRetries = getenvInt("PROVIDER_MAX_RETRIES", 2)
	cfg.OpenMeteoURL = os.Getenv("OPENMETEO_URL")
	cfg.BrightSkyURL = os.Getenv("BRIGHTSKY_URL")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	cfg.JobHistory = getenvInt("JOB_HISTORY", 20)
	if cfg.JobMaxAge, err = getenvDuration("JOB_MAX_AGE", "24h"); err != nil {
		return nil, err
	}

	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", "0"); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval > 0 {
		req, err := loadRefreshRequest()
		if err != nil {
			return nil, err
		}
		cfg.Refresh = req
	}

	return cfg, nil
}

func loadRefreshRequest() (*weather.JobRequest, error) {
	region, err := ParseRegion(os.Getenv("REFRESH_REGION"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_REGION: %w", err)
	}
	region.Timezone = getenvDefault("REFRESH_TIMEZONE", "UTC")

	req := &weather.JobRequest{
		Region:        region,
		Source:        getenvDefault("REFRESH_SOURCE", "OpenMeteo"),
		ConditionID:   getenvDefault("REFRESH_CONDITION", "cloud_cover"),
		ForecastHours: getenvInt("REFRESH_HOURS", 12),
		Labels:        getenvBool("REFRESH_LABELS", false),
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid refresh job: %w", err)
	}
	return req, nil
}

// ParseRegion parses "lat,lon,size,unit,resolution", e.g. "54.10,12.11,80,km,8".
func ParseRegion(s string) (weather.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 5 {
		return weather.Region{}, fmt.Errorf("expected lat,lon,size,unit,resolution, got %q", s)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return weather.Region{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return weather.Region{}, fmt.Errorf("longitude: %w", err)
	}
	size, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return weather.Region{}, fmt.Errorf("size: %w", err)
	}
	res, err := strconv.Atoi(parts[4])
	if err != nil {
		return weather.Region{}, fmt.Errorf("resolution: %w", err)
	}

	return weather.Region{
		Center:     weather.Coordinate{Lat: lat, Lon: lon},
		Size:       size,
		Unit:       weather.SizeUnit(strings.ToLower(parts[3])),
		Resolution: res,
	}, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
