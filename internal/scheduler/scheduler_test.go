package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/i474232898/weather-heatmap/internal/weather"
)

type fakeRunner struct {
	mu      sync.Mutex
	running bool
	started []weather.JobRequest
}

func (f *fakeRunner) StartIfIdle(req weather.JobRequest) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return "", false
	}
	f.started = append(f.started, req)
	return "job", true
}

func TestRefreshSkipsWhileRunning(t *testing.T) {
	req := &weather.JobRequest{Source: "OpenMeteo", ConditionID: "cloud_cover", ForecastHours: 1}
	runner := &fakeRunner{running: true}
	s := New(req, time.Hour, runner)

	s.refresh()
	if len(runner.started) != 0 {
		t.Fatalf("expected no job while another one runs")
	}

	runner.running = false
	s.refresh()
	if len(runner.started) != 1 || runner.started[0].ConditionID != "cloud_cover" {
		t.Fatalf("expected one refresh job, got %+v", runner.started)
	}
}

func TestStartWithoutRegion(t *testing.T) {
	s := New(nil, time.Hour, &fakeRunner{})
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Stop()
}

func TestStartRunsImmediately(t *testing.T) {
	runner := &fakeRunner{}
	s := New(&weather.JobRequest{ConditionID: "cloud_cover"}, time.Hour, runner)
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runner.mu.Lock()
		n := len(runner.started)
		runner.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected the first refresh right after start")
}
