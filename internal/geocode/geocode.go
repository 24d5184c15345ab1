// Package geocode resolves place names to region centers.
package geocode

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-heatmap/internal/weather"
)

// ErrNotConfigured is returned when no geocoding API key is set.
var ErrNotConfigured = errors.New("geocoding is not configured")

// Place identifies a location by name.
type Place struct {
	City    string `json:"city" validate:"required"`
	Country string `json:"country"`
}

// Key returns a canonical string key for caching this place.
func (p Place) Key() string {
	return strings.ToLower(p.City) + ":" + strings.ToLower(p.Country)
}

// Resolver looks up coordinates through the Google geocoding API and
// remembers earlier answers.
type Resolver struct {
	apiKey string
	lookup func(geocoder.Address) (geocoder.Location, error)

	mu    sync.Mutex
	cache map[string]weather.Coordinate
}

// NewResolver creates a resolver; an empty apiKey disables it.
func NewResolver(apiKey string) *Resolver {
	return &Resolver{
		apiKey: apiKey,
		lookup: func(a geocoder.Address) (geocoder.Location, error) {
			// The library reads its key from a package variable.
			geocoder.ApiKey = apiKey
			return geocoder.Geocoding(a)
		},
		cache: make(map[string]weather.Coordinate),
	}
}

// Enabled reports whether an API key is configured.
func (r *Resolver) Enabled() bool {
	return r != nil && r.apiKey != ""
}

// Resolve returns the coordinate of place.
func (r *Resolver) Resolve(place Place) (weather.Coordinate, error) {
	if !r.Enabled() {
		return weather.Coordinate{}, ErrNotConfigured
	}
	if strings.TrimSpace(place.City) == "" {
		return weather.Coordinate{}, fmt.Errorf("place has no city")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cache[place.Key()]; ok {
		return c, nil
	}

	loc, err := r.lookup(geocoder.Address{City: place.City, Country: place.Country})
	if err != nil {
		return weather.Coordinate{}, fmt.Errorf("geocode %s: %w", place.Key(), err)
	}

	c := weather.Coordinate{Lat: loc.Latitude, Lon: loc.Longitude}
	r.cache[place.Key()] = c
	return c, nil
}
