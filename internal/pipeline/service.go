// Package pipeline wires region sampling, data gathering, regridding and
// rendering into one heatmap generation run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/i474232898/weather-heatmap/internal/render"
	"github.com/i474232898/weather-heatmap/internal/weather"
)

// overheadSteps are progress steps that are neither a request nor a frame:
// the end of gathering and the final update.
const overheadSteps = 2

// Service orchestrates gatherers and the renderer. Only one Generate call is
// expected to run at a time since every run wipes the same working directory.
type Service struct {
	gatherers map[string]weather.Gatherer
	workDir   string
	tileSize  int
}

// NewService creates a Service writing frames into workDir.
func NewService(workDir string, tileSize int, gatherers ...weather.Gatherer) *Service {
	m := make(map[string]weather.Gatherer, len(gatherers))
	for _, g := range gatherers {
		m[g.Name()] = g
	}
	return &Service{
		gatherers: m,
		workDir:   workDir,
		tileSize:  tileSize,
	}
}

// WorkDir is the directory frames are written to.
func (s *Service) WorkDir() string {
	return s.workDir
}

// Sources returns the registered data source names in sorted order.
func (s *Service) Sources() []string {
	names := make([]string, 0, len(s.gatherers))
	for name := range s.gatherers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Conditions returns the catalog of the named source.
func (s *Service) Conditions(source string) ([]weather.Condition, error) {
	g, err := s.gatherer(source)
	if err != nil {
		return nil, err
	}
	return g.Conditions(), nil
}

// Catalog returns the condition catalog of every source.
func (s *Service) Catalog() map[string][]weather.Condition {
	out := make(map[string][]weather.Condition, len(s.gatherers))
	for name, g := range s.gatherers {
		out[name] = g.Conditions()
	}
	return out
}

func (s *Service) gatherer(name string) (weather.Gatherer, error) {
	g, ok := s.gatherers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", weather.ErrUnknownSource, name)
	}
	return g, nil
}

// Generate runs one job: gather, assemble, render. Progress updates go to
// report; the last update always has InProgress=false and Percent=100.
// On cancellation or failure no frames are left in the working directory.
func (s *Service) Generate(ctx context.Context, req weather.JobRequest, report weather.Reporter) ([]weather.Frame, error) {
	resolution := req.Region.Resolution
	samples := resolution * resolution
	tracker := weather.NewTracker(samples+req.ForecastHours+overheadSteps, report)

	g, cond, err := s.prepare(req)
	if err != nil {
		log.Printf("ERROR: rejecting job: %v", err)
		tracker.Finish(fmt.Sprintf("Image generation failed: %v", err))
		return nil, err
	}

	frames, err := s.generate(ctx, req, g, cond, tracker)
	switch {
	case err == nil:
		tracker.Finish("Finished creating images")
		return frames, nil
	case errors.Is(err, weather.ErrCancelled):
		s.discardFrames()
		tracker.Finish("Cancelled by user.")
		return nil, err
	default:
		s.discardFrames()
		tracker.Finish(fmt.Sprintf("Image generation failed: %v", err))
		return nil, err
	}
}

// Check reports whether req would be rejected before any work starts.
func (s *Service) Check(req weather.JobRequest) error {
	_, _, err := s.prepare(req)
	return err
}

// prepare resolves the source and condition; it fails before any side effect.
func (s *Service) prepare(req weather.JobRequest) (weather.Gatherer, weather.Condition, error) {
	g, err := s.gatherer(req.Source)
	if err != nil {
		return nil, weather.Condition{}, err
	}
	cond, err := weather.LookupCondition(g, req.ConditionID)
	if err != nil {
		return nil, weather.Condition{}, err
	}
	if err := req.Validate(); err != nil {
		return nil, weather.Condition{}, err
	}
	res := req.Region.Resolution
	if err := render.CheckCanvas(res, res, s.tileSize); err != nil {
		return nil, weather.Condition{}, err
	}
	return g, cond, nil
}

func (s *Service) generate(ctx context.Context, req weather.JobRequest, g weather.Gatherer, cond weather.Condition, tracker *weather.Tracker) ([]weather.Frame, error) {
	tracker.Note("Deleting old images")
	if err := s.resetWorkDir(); err != nil {
		return nil, fmt.Errorf("prepare working directory: %w", err)
	}

	log.Printf("INFO: generating %s/%s for %s (res %d, %dh)", g.Name(), cond.ID, req.Region.Center, req.Region.Resolution, req.ForecastHours)

	records, err := g.Gather(ctx, req.Region, cond, req.ForecastHours, tracker)
	if err != nil {
		var partial *weather.PartialGatherError
		if !req.KeepPartial || !errors.As(err, &partial) {
			return nil, err
		}
		log.Printf("ERROR: %v; rendering partial data", err)
		records = partial.Records
	}
	tracker.Step("Finished gathering data")

	grid := weather.Assemble(records)
	min, max := cond.Scale(records)
	bounds := weather.RegionBounds(req.Region)
	renderer := render.New(s.tileSize, req.Labels)

	frames := make([]weather.Frame, 0, len(grid.Times))
	for i, ts := range grid.Times {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", weather.ErrCancelled, err)
		}
		tracker.Step("Creating image %d of %d", i+1, len(grid.Times))

		img, err := renderer.Frame(grid, i, cond, min, max)
		if err != nil {
			return nil, fmt.Errorf("render frame %d: %w", i, err)
		}
		path, err := renderer.Write(img, s.workDir, i)
		if err != nil {
			return nil, fmt.Errorf("write frame %d: %w", i, err)
		}
		frames = append(frames, weather.Frame{
			Index:     i,
			Timestamp: ts,
			Path:      path,
			Bounds:    bounds,
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", weather.ErrCancelled, err)
	}
	return frames, nil
}

// resetWorkDir deletes every file left by the previous job.
func (s *Service) resetWorkDir() error {
	if err := os.RemoveAll(s.workDir); err != nil {
		return err
	}
	return os.MkdirAll(s.workDir, 0o755)
}

func (s *Service) discardFrames() {
	if err := s.resetWorkDir(); err != nil {
		log.Printf("ERROR: cleaning %s: %v", s.workDir, err)
	}
}
