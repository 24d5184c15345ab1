package render

import (
	"errors"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/i474232898/weather-heatmap/internal/weather"
)

func TestColorFor(t *testing.T) {
	cases := []struct {
		value, min, max float64
		want            color.NRGBA
	}{
		{0, 0, 100, color.NRGBA{R: 255, G: 255, B: 255, A: 255}},
		{100, 0, 100, color.NRGBA{R: 0, G: 0, B: 255, A: 255}},
		{50, 0, 100, color.NRGBA{R: 128, G: 128, B: 255, A: 255}},
		{-20, 0, 100, color.NRGBA{R: 255, G: 255, B: 255, A: 255}},
		{140, 0, 100, color.NRGBA{R: 0, G: 0, B: 255, A: 255}},
		{7, 7, 7, color.NRGBA{R: 255, G: 255, B: 255, A: 255}},
	}
	for _, tc := range cases {
		if got := ColorFor(tc.value, tc.min, tc.max); got != tc.want {
			t.Fatalf("ColorFor(%v, %v, %v) = %v, want %v", tc.value, tc.min, tc.max, got, tc.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	cases := map[string]string{
		FormatValue(40, "%"):    "40%",
		FormatValue(12.5, "°C"): "12.5 °C",
		FormatValue(3, ""):      "3",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(3); got != "weather_image_3.png" {
		t.Fatalf("unexpected file name %q", got)
	}
}

func testGrid() *weather.Grid {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return weather.Assemble([]weather.Record{
		{Coordinate: weather.Coordinate{Lat: 51, Lon: 10}, Value: 0, Time: ts},
		{Coordinate: weather.Coordinate{Lat: 51, Lon: 11}, Value: 100, Time: ts},
		{Coordinate: weather.Coordinate{Lat: 50, Lon: 10}, Value: 50, Time: ts},
		{Coordinate: weather.Coordinate{Lat: 50, Lon: 11}, Error: true, Time: ts},
	})
}

func TestFrameTiles(t *testing.T) {
	r := New(8, false)
	img, err := r.Frame(testGrid(), 0, weather.Condition{Unit: "%"}, 0, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 16 {
		t.Fatalf("expected 16x16 canvas, got %v", b)
	}

	checks := []struct {
		x, y int
		want color.NRGBA
	}{
		{2, 2, ColorFor(0, 0, 100)},    // north-west
		{12, 2, ColorFor(100, 0, 100)}, // north-east
		{2, 12, ColorFor(50, 0, 100)},  // south-west
		{12, 12, NoDataColor},          // south-east, failed request
	}
	for _, c := range checks {
		if got := img.NRGBAAt(c.x, c.y); got != c.want {
			t.Fatalf("pixel (%d,%d) = %v, want %v", c.x, c.y, got, c.want)
		}
	}
}

func TestFrameWithLabels(t *testing.T) {
	r := New(64, true)
	img, err := r.Frame(testGrid(), 0, weather.Condition{Unit: "%"}, 0, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The north-east tile is pure blue; a label leaves darker pixels in it.
	blue := ColorFor(100, 0, 100)
	found := false
	for y := 0; y < 64 && !found; y++ {
		for x := 64; x < 128; x++ {
			if img.NRGBAAt(x, y) != blue {
				found = true
				break
			}
		}
	}
	if !found {
		t.Fatalf("expected label pixels in the north-east tile")
	}
}

func TestFrameCanvasTooLarge(t *testing.T) {
	r := New(maxCanvasSide, false)
	_, err := r.Frame(testGrid(), 0, weather.Condition{}, 0, 100)
	if !errors.Is(err, ErrCanvasTooLarge) {
		t.Fatalf("expected ErrCanvasTooLarge, got %v", err)
	}
}

func TestWritePNG(t *testing.T) {
	dir := t.TempDir()
	r := New(4, false)
	img, err := r.Frame(testGrid(), 0, weather.Condition{}, 0, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path, err := r.Write(img, dir, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != filepath.Join(dir, "weather_image_0.png") {
		t.Fatalf("unexpected path %q", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("written file is not a PNG: %v", err)
	}
	if decoded.Bounds().Dx() != 8 {
		t.Fatalf("unexpected decoded width %d", decoded.Bounds().Dx())
	}
}

func TestCheckCanvas(t *testing.T) {
	if err := CheckCanvas(8, 8, DefaultTileSize); err != nil {
		t.Fatalf("8x8 tiles of %d px should fit: %v", DefaultTileSize, err)
	}
	if err := CheckCanvas(9, 9, DefaultTileSize); !errors.Is(err, ErrCanvasTooLarge) {
		t.Fatalf("expected ErrCanvasTooLarge, got %v", err)
	}
	if err := CheckCanvas(32, 32, 128); err != nil {
		t.Fatalf("32x32 tiles of 128 px should fit: %v", err)
	}
}
