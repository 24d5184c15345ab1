// Package render draws gridded weather values as color-mapped PNG tiles.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/i474232898/weather-heatmap/internal/weather"
)

// DefaultTileSize is the edge length in pixels of one grid cell.
const DefaultTileSize = 512

// maxCanvasSide bounds the edge length of a frame in pixels; a square frame
// at this size takes 64 MiB.
const maxCanvasSide = 4096

// ErrCanvasTooLarge is returned when a frame would exceed maxCanvasSide.
var ErrCanvasTooLarge = errors.New("canvas too large")

// NoDataColor fills cells without a usable value.
var NoDataColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

var labelColor = color.NRGBA{A: 255}

// ColorFor maps value linearly from white (min) to blue (max).
// Values outside the range are clamped; an empty range yields the min color.
func ColorFor(value, min, max float64) color.NRGBA {
	if !(max > min) {
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	c := 255 * (value - min) / (max - min)
	c = math.Max(0, math.Min(255, c))
	v := uint8(math.Round(255 - c))
	return color.NRGBA{R: v, G: v, B: 255, A: 255}
}

// CheckCanvas reports ErrCanvasTooLarge when cols x rows tiles of tileSize
// pixels would exceed the frame size limit.
func CheckCanvas(cols, rows, tileSize int) error {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	width, height := cols*tileSize, rows*tileSize
	if width > maxCanvasSide || height > maxCanvasSide {
		return fmt.Errorf("%w: %dx%d pixels, limit is %d per side", ErrCanvasTooLarge, width, height, maxCanvasSide)
	}
	return nil
}

// FileName is the name of the PNG written for time index i.
func FileName(i int) string {
	return "weather_image_" + strconv.Itoa(i) + ".png"
}

// Renderer draws frames. It is not safe for concurrent use.
type Renderer struct {
	tileSize int
	labels   bool
	face     font.Face
}

// New creates a renderer with square tiles of tileSize pixels.
func New(tileSize int, labels bool) *Renderer {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	return &Renderer{tileSize: tileSize, labels: labels}
}

// Frame draws time index t of the grid with the color scale [min, max].
func (r *Renderer) Frame(g *weather.Grid, t int, cond weather.Condition, min, max float64) (*image.NRGBA, error) {
	cols := 0
	for _, row := range g.Rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	if err := CheckCanvas(cols, len(g.Rows), r.tileSize); err != nil {
		return nil, err
	}
	width, height := cols*r.tileSize, len(g.Rows)*r.tileSize
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("grid is empty")
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	for y, row := range g.Rows {
		for x, c := range row {
			col := NoDataColor
			if rec, ok := g.Lookup(t, c); ok && !rec.Error {
				col = ColorFor(rec.Value, min, max)
			}
			draw.Draw(img, r.tile(x, y), image.NewUniform(col), image.Point{}, draw.Src)
		}
	}

	if r.labels {
		face := r.labelFace()
		for y, row := range g.Rows {
			for x, c := range row {
				text := "N/A"
				if rec, ok := g.Lookup(t, c); ok && !rec.Error {
					text = FormatValue(rec.Value, cond.Unit)
				}
				drawCentered(img, face, r.tile(x, y), text)
			}
		}
	}

	return img, nil
}

// Write encodes img as PNG into dir under FileName(i) and returns the path.
func (r *Renderer) Write(img image.Image, dir string, i int) (string, error) {
	path := filepath.Join(dir, FileName(i))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// FormatValue renders a cell label; percentages take no space before the unit.
func FormatValue(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	switch unit {
	case "":
		return s
	case "%":
		return s + unit
	default:
		return s + " " + unit
	}
}

func (r *Renderer) tile(x, y int) image.Rectangle {
	return image.Rect(x*r.tileSize, y*r.tileSize, (x+1)*r.tileSize, (y+1)*r.tileSize)
}

func (r *Renderer) labelFace() font.Face {
	if r.face != nil {
		return r.face
	}
	r.face = basicfont.Face7x13

	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return r.face
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(r.tileSize) / 8,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return r.face
	}
	r.face = face
	return r.face
}

func drawCentered(dst draw.Image, face font.Face, rect image.Rectangle, text string) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(labelColor), Face: face}
	m := face.Metrics()

	center := rect.Min.Add(rect.Size().Div(2))
	d.Dot = fixed.Point26_6{
		X: fixed.I(center.X) - d.MeasureString(text)/2,
		Y: fixed.I(center.Y) + (m.Ascent-m.Descent)/2,
	}
	d.DrawString(text)
}
