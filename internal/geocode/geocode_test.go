package geocode

import (
	"errors"
	"testing"

	"github.com/kelvins/geocoder"
)

func TestResolverDisabled(t *testing.T) {
	r := NewResolver("")
	if _, err := r.Resolve(Place{City: "Rostock"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	var nilResolver *Resolver
	if nilResolver.Enabled() {
		t.Fatalf("nil resolver must be disabled")
	}
}

func TestResolverCachesLookups(t *testing.T) {
	r := NewResolver("key")
	calls := 0
	r.lookup = func(a geocoder.Address) (geocoder.Location, error) {
		calls++
		if a.City != "Rostock" || a.Country != "DE" {
			t.Fatalf("unexpected address %+v", a)
		}
		return geocoder.Location{Latitude: 54.09, Longitude: 12.14}, nil
	}

	for i := 0; i < 2; i++ {
		c, err := r.Resolve(Place{City: "Rostock", Country: "DE"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Lat != 54.09 || c.Lon != 12.14 {
			t.Fatalf("unexpected coordinate %s", c)
		}
	}
	if _, err := r.Resolve(Place{City: "rostock", Country: "de"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one lookup, got %d", calls)
	}
}

func TestResolverLookupError(t *testing.T) {
	r := NewResolver("key")
	r.lookup = func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{}, errors.New("ZERO_RESULTS")
	}
	if _, err := r.Resolve(Place{City: "Atlantis"}); err == nil {
		t.Fatalf("expected lookup error")
	}
	if _, err := r.Resolve(Place{}); err == nil {
		t.Fatalf("expected error for an empty place")
	}
}
