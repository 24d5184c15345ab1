package weather

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/golang/geo/s2"
)

var validate = validator.New()

// Validate checks the request fields before any work is scheduled.
func (r JobRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	return r.Region.Validate()
}

// Validate checks the region shape and that its center is a real point on the sphere.
func (r Region) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if !s2.LatLngFromDegrees(r.Center.Lat, r.Center.Lon).IsValid() {
		return fmt.Errorf("invalid region center %s", r.Center)
	}
	return nil
}
