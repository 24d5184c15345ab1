package weather

import (
	"context"
	"fmt"
)

// Gatherer abstracts a forecast data source (e.g. Open-Meteo, Bright Sky).
//
// Gather fetches forecastHours+1 hourly values of cond for every sample of the
// region, one request at a time, advancing progress by one step per sample.
// A failed request yields error-flagged records instead of an error; a
// cancelled context yields ErrCancelled.
type Gatherer interface {
	Name() string
	Conditions() []Condition
	Gather(ctx context.Context, region Region, cond Condition, forecastHours int, progress *Tracker) ([]Record, error)
}

// LookupCondition returns the condition with the given id from the gatherer's catalog.
func LookupCondition(g Gatherer, id string) (Condition, error) {
	for _, c := range g.Conditions() {
		if c.ID == id {
			return c, nil
		}
	}
	return Condition{}, fmt.Errorf("%w: %q is not offered by %s", ErrUnsupportedCondition, id, g.Name())
}
