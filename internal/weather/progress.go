package weather

import (
	"fmt"
	"sync"
	"time"
)

// Progress is one progress update of a running job.
type Progress struct {
	InProgress bool      `json:"inProgress"`
	Percent    float64   `json:"progress"`
	Message    string    `json:"message"`
	Time       time.Time `json:"time"`
}

// Reporter receives progress updates in emission order.
type Reporter func(Progress)

// Tracker distributes a job's 0-100 progress budget over a fixed number of
// steps. Emitted values never decrease and nothing is emitted after Finish.
// The reporter is called with the tracker locked, so updates arrive in order.
type Tracker struct {
	mu       sync.Mutex
	perStep  float64
	current  float64
	finished bool
	report   Reporter
}

// NewTracker creates a tracker that reaches 100 after steps calls to Step.
func NewTracker(steps int, report Reporter) *Tracker {
	if steps < 1 {
		steps = 1
	}
	return &Tracker{
		perStep: 100 / float64(steps),
		report:  report,
	}
}

// PerStep returns the share of the budget one step is worth.
func (t *Tracker) PerStep() float64 {
	return t.perStep
}

// Current returns the last emitted progress value.
func (t *Tracker) Current() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Step advances by one step and emits msg.
func (t *Tracker) Step(format string, args ...any) {
	t.emit(t.perStep, true, fmt.Sprintf(format, args...))
}

// Note emits msg without advancing.
func (t *Tracker) Note(format string, args ...any) {
	t.emit(0, true, fmt.Sprintf(format, args...))
}

// Finish emits the terminal update at 100%.
func (t *Tracker) Finish(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	t.current = 100
	t.send(Progress{InProgress: false, Percent: 100, Message: msg})
}

// Finished reports whether the terminal update was emitted.
func (t *Tracker) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

func (t *Tracker) emit(delta float64, inProgress bool, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.current += delta
	if t.current > 100 {
		t.current = 100
	}
	t.send(Progress{InProgress: inProgress, Percent: t.current, Message: msg})
}

func (t *Tracker) send(p Progress) {
	if t.report == nil {
		return
	}
	p.Time = time.Now().UTC()
	t.report(p)
}
