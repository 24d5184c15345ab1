package scheduler

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/weather-heatmap/internal/weather"
)

// Runner starts generation jobs.
type Runner interface {
	// StartIfIdle starts req unless a job is running and reports whether it did.
	StartIfIdle(req weather.JobRequest) (string, bool)
}

// Scheduler periodically regenerates the heatmap of a configured region.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	request   *weather.JobRequest
	interval  time.Duration
}

// New creates a new Scheduler.
func New(request *weather.JobRequest, interval time.Duration, runner Runner) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		request:   request,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.request == nil {
		log.Println("scheduler: no refresh region configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 60
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(s.refresh)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// refresh starts a job unless one is already running; a user job is never superseded.
func (s *Scheduler) refresh() {
	id, ok := s.runner.StartIfIdle(*s.request)
	if !ok {
		log.Println("scheduler: a job is running; skipping refresh")
		return
	}
	log.Printf("scheduler: started refresh job %s for %s", id, s.request.Region.Center)
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
