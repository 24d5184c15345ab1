package weather

import (
	"math"

	"github.com/golang/geo/s2"
)

const (
	kmPerMile = 1.60934

	// Length of one degree of latitude, and of longitude at the equator.
	kmPerDegreeLat = 110.574
	kmPerDegreeLon = 111.320
)

// SizeKm returns the side length of the region in kilometers.
func (r Region) SizeKm() float64 {
	if r.Unit == Miles {
		return r.Size * kmPerMile
	}
	return r.Size
}

// StepDegrees returns the distance between two neighbouring samples in degrees.
func (r Region) StepDegrees() (latStep, lonStep float64) {
	stepKm := r.SizeKm() / float64(r.Resolution)
	latStep = stepKm / kmPerDegreeLat
	lonStep = stepKm / (kmPerDegreeLon * math.Cos(r.Center.Lat*math.Pi/180))
	return latStep, lonStep
}

// gridOffset is the number of steps from the center to the first sample,
// chosen so that the samples are balanced around the center.
func gridOffset(resolution int) float64 {
	offset := math.Floor(-float64(resolution) / 2)
	if resolution%2 == 0 {
		return offset + 0.5
	}
	return offset + 1
}

// SampleGrid returns the resolution x resolution sample coordinates of the
// region in row-major order, rows walking north and columns walking east.
func SampleGrid(r Region) []Coordinate {
	if r.Resolution < 1 {
		return nil
	}
	latStep, lonStep := r.StepDegrees()
	offset := gridOffset(r.Resolution)

	coords := make([]Coordinate, 0, r.Resolution*r.Resolution)
	for row := 0; row < r.Resolution; row++ {
		for col := 0; col < r.Resolution; col++ {
			coords = append(coords, Coordinate{
				Lat: r.Center.Lat + (offset+float64(row))*latStep,
				Lon: r.Center.Lon + (offset+float64(col))*lonStep,
			})
		}
	}
	return coords
}

// RegionBounds returns the area covered by the tiles of the region: the
// bounding box of all samples grown by half a step on every side.
func RegionBounds(r Region) Bounds {
	coords := SampleGrid(r)
	if len(coords) == 0 {
		return Bounds{}
	}

	rect := s2.RectFromLatLng(s2.LatLngFromDegrees(coords[0].Lat, coords[0].Lon).Normalized())
	for _, c := range coords[1:] {
		rect = rect.AddPoint(s2.LatLngFromDegrees(c.Lat, c.Lon).Normalized())
	}

	latStep, lonStep := r.StepDegrees()
	size := rect.Size()
	rect = s2.RectFromCenterSize(rect.Center(), s2.LatLngFromDegrees(
		size.Lat.Degrees()+latStep,
		size.Lng.Degrees()+lonStep,
	))

	return Bounds{
		South: rect.Lo().Lat.Degrees(),
		West:  rect.Lo().Lng.Degrees(),
		North: rect.Hi().Lat.Degrees(),
		East:  rect.Hi().Lng.Degrees(),
	}
}
