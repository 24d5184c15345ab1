package httpapi

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-heatmap/internal/geocode"
	"github.com/i474232898/weather-heatmap/internal/job"
	"github.com/i474232898/weather-heatmap/internal/pipeline"
	"github.com/i474232898/weather-heatmap/internal/store"
	"github.com/i474232898/weather-heatmap/internal/weather"
)

// API bundles what the HTTP handlers need.
type API struct {
	Service    *pipeline.Service
	Controller *job.Controller
	Jobs       *store.MemoryStore
	Geocoder   *geocode.Resolver
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, api API) {
	v1 := app.Group("/api/v1")

	v1.Get("/sources", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sources":    api.Service.Sources(),
			"conditions": api.Service.Catalog(),
		})
	})

	v1.Get("/sources/:name/conditions", func(c *fiber.Ctx) error {
		conds, err := api.Service.Conditions(c.Params("name"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(conds)
	})

	v1.Post("/jobs", func(c *fiber.Ctx) error {
		var body jobRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid job request body")
		}

		req, err := body.toJobRequest(api.Geocoder)
		if err != nil {
			if errors.Is(err, geocode.ErrNotConfigured) {
				return fiber.NewError(fiber.StatusBadRequest, "region center is required when geocoding is not configured")
			}
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := api.Service.Check(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		j := api.Controller.Start(req)
		return c.Status(fiber.StatusAccepted).JSON(j.Record())
	})

	v1.Get("/jobs", func(c *fiber.Ctx) error {
		return c.JSON(api.Jobs.List())
	})

	v1.Get("/jobs/current", func(c *fiber.Ctx) error {
		j := api.Controller.Current()
		if j == nil {
			return fiber.NewError(fiber.StatusNotFound, "no job has been started")
		}
		return c.JSON(j.Record())
	})

	v1.Get("/jobs/current/progress", func(c *fiber.Ctx) error {
		return c.JSON(api.Controller.LatestProgress())
	})

	v1.Get("/jobs/current/events", streamEvents(api.Controller))

	v1.Post("/jobs/current/cancel", func(c *fiber.Ctx) error {
		cancel := api.Controller.Cancel
		if c.QueryBool("hard") {
			cancel = api.Controller.Terminate
		}
		if err := cancel(); err != nil {
			if errors.Is(err, job.ErrNoJob) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return err
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	v1.Get("/jobs/:id", func(c *fiber.Ctx) error {
		rec, err := api.Jobs.Get(c.Params("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no job with this id")
			}
			return err
		}
		return c.JSON(rec)
	})

	v1.Get("/jobs/:id/frames/:index", func(c *fiber.Ctx) error {
		rec, err := api.Jobs.Get(c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "no job with this id")
		}
		i, err := strconv.Atoi(c.Params("index"))
		if err != nil || i < 0 || i >= len(rec.Frames) {
			return fiber.NewError(fiber.StatusNotFound, "no frame with this index")
		}
		// Every job rewrites the same working directory, so only the frames
		// of the most recent job are still on disk.
		if cur := api.Controller.Current(); cur == nil || cur.ID != rec.ID {
			return fiber.NewError(fiber.StatusGone, "frame is no longer available")
		}
		path := rec.Frames[i].Path
		if _, err := os.Stat(path); err != nil {
			return fiber.NewError(fiber.StatusGone, "frame is no longer available")
		}
		c.Type("png")
		return c.SendFile(path)
	})
}

// regionRequest locates the region either by center or by place name.
type regionRequest struct {
	Center     *weather.Coordinate `json:"center"`
	Place      *geocode.Place      `json:"place"`
	Size       float64             `json:"size"`
	Unit       string              `json:"unit"`
	Resolution int                 `json:"resolution"`
	Timezone   string              `json:"timezone"`
}

// jobRequest is the body of POST /jobs.
type jobRequest struct {
	Region        regionRequest `json:"region"`
	Source        string        `json:"source"`
	Condition     string        `json:"condition"`
	ForecastHours int           `json:"forecastHours"`
	Labels        bool          `json:"labels"`
	KeepPartial   bool          `json:"keepPartial"`
}

func (r jobRequest) toJobRequest(geo *geocode.Resolver) (weather.JobRequest, error) {
	var center weather.Coordinate
	switch {
	case r.Region.Center != nil:
		center = *r.Region.Center
	case r.Region.Place != nil:
		c, err := geo.Resolve(*r.Region.Place)
		if err != nil {
			return weather.JobRequest{}, err
		}
		center = c
	default:
		return weather.JobRequest{}, errors.New("region needs a center or a place")
	}

	unit := weather.SizeUnit(strings.ToLower(r.Region.Unit))
	if unit == "" {
		unit = weather.Kilometers
	}
	tz := r.Region.Timezone
	if tz == "" {
		tz = "UTC"
	}

	return weather.JobRequest{
		Region: weather.Region{
			Center:     center,
			Size:       r.Region.Size,
			Unit:       unit,
			Resolution: r.Region.Resolution,
			Timezone:   tz,
		},
		Source:        r.Source,
		ConditionID:   r.Condition,
		ForecastHours: r.ForecastHours,
		Labels:        r.Labels,
		KeepPartial:   r.KeepPartial,
	}, nil
}
