package weather

import (
	"fmt"
	"time"
)

// SizeUnit is the unit a region's side length is expressed in.
type SizeUnit string

const (
	Kilometers SizeUnit = "km"
	Miles      SizeUnit = "mi"
)

// DynamicBound marks a condition bound that is computed from the gathered data.
const DynamicBound = -1

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", c.Lat, c.Lon)
}

// Region is the square area to sample, centered on Center.
// Size is the full span of the square, Resolution the number of samples per side.
type Region struct {
	Center     Coordinate `json:"center"`
	Size       float64    `json:"size" validate:"gt=0"`
	Unit       SizeUnit   `json:"unit" validate:"oneof=km mi"`
	Resolution int        `json:"resolution" validate:"gte=1,lte=32"`
	Timezone   string     `json:"timezone" validate:"required"`
}

// Condition is a forecast variable a data source can deliver.
// Min/Max equal to DynamicBound are resolved from the observed values.
type Condition struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Upstream string  `json:"-"`
	Unit     string  `json:"unit"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// Record is one gathered value for one coordinate and hour.
// Error marks a placeholder synthesized for a failed request; Value is meaningless then.
type Record struct {
	Coordinate Coordinate
	Condition  string
	Value      float64
	Error      bool
	Time       time.Time
}

// Bounds is the geographic extent covered by a rendered frame.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Frame is one rendered image for one timestamp.
type Frame struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
	Bounds    Bounds    `json:"bounds"`
}

// JobRequest describes one heatmap generation run.
type JobRequest struct {
	Region        Region `json:"region"`
	Source        string `json:"source" validate:"required"`
	ConditionID   string `json:"condition" validate:"required"`
	ForecastHours int    `json:"forecastHours" validate:"gte=1,lte=384"`
	Labels        bool   `json:"labels"`

	// KeepPartial renders whatever was gathered when the gather loop aborts
	// on an unexpected error instead of failing the job.
	KeepPartial bool `json:"keepPartial"`
}
