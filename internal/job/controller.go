// Package job runs heatmap generation on a background worker and relays its
// progress to any number of listeners.
package job

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-heatmap/internal/store"
	"github.com/i474232898/weather-heatmap/internal/weather"
)

// ErrNoJob is returned when there is no running job to act on.
var ErrNoJob = errors.New("no job is running")

// State is the lifecycle state of a job.
type State string

const (
	StateRunning   State = "running"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

const cancelledMessage = "Cancelled by user."

// Generator runs one job and reports its progress.
type Generator interface {
	Generate(ctx context.Context, req weather.JobRequest, report weather.Reporter) ([]weather.Frame, error)
}

// Recorder keeps the job history.
type Recorder interface {
	Save(rec store.JobRecord)
}

// Job is one generation run.
type Job struct {
	ID        string
	Request   weather.JobRequest
	StartedAt time.Time

	cancel   context.CancelFunc
	done     chan struct{} // closed when the outcome is known
	exited   chan struct{} // closed when the worker goroutine returned
	detached atomic.Bool

	mu         sync.Mutex
	state      State
	frames     []weather.Frame
	err        error
	finishedAt time.Time
}

// Done is closed once the job finished, failed or was cancelled.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job ends or ctx is done.
func (j *Job) Wait(ctx context.Context) ([]weather.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-j.done:
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.frames, j.err
}

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Record returns the job as stored in the history.
func (j *Job) Record() store.JobRecord {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec := store.JobRecord{
		ID:        j.ID,
		State:     string(j.state),
		Request:   j.Request,
		StartedAt: j.StartedAt,
		Frames:    j.frames,
	}
	if !j.finishedAt.IsZero() {
		t := j.finishedAt
		rec.FinishedAt = &t
	}
	if j.err != nil {
		rec.Error = j.err.Error()
	}
	return rec
}

// finish records the outcome once; later calls are ignored.
func (j *Job) finish(state State, frames []weather.Frame, err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning {
		return false
	}
	j.state = state
	j.frames = frames
	j.err = err
	j.finishedAt = time.Now().UTC()
	close(j.done)
	return true
}

// Controller owns the single active job. Starting a job supersedes the
// running one; concurrent jobs are never executed.
type Controller struct {
	gen      Generator
	recorder Recorder

	mu        sync.Mutex
	current   *Job
	latest    []weather.Progress
	listeners map[string]chan Message
}

// NewController creates a controller running jobs with gen.
func NewController(gen Generator, recorder Recorder) *Controller {
	return &Controller{
		gen:       gen,
		recorder:  recorder,
		listeners: make(map[string]chan Message),
	}
}

// Start launches a job on a background worker. A running job is terminated first.
func (c *Controller) Start(req weather.JobRequest) *Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(req)
}

// StartIfIdle launches a job unless one is running. The check and the start
// happen under one lock, so a job started concurrently is never superseded.
func (c *Controller) StartIfIdle(req weather.JobRequest) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.current.State() == StateRunning {
		return "", false
	}
	return c.startLocked(req).ID, true
}

func (c *Controller) startLocked(req weather.JobRequest) *Job {
	prev := c.current
	if prev != nil && prev.State() == StateRunning {
		log.Printf("controller: job %s superseded", prev.ID)
		c.terminateLocked(prev)
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &Job{
		ID:        uuid.NewString(),
		Request:   req,
		StartedAt: time.Now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
		state:     StateRunning,
	}
	c.current = j
	c.latest = nil
	c.save(j)

	go c.run(ctx, j, prev)
	return j
}

// run is the job's consumer loop: the worker posts typed messages and this
// loop applies them in order.
func (c *Controller) run(ctx context.Context, j *Job, prev *Job) {
	msgs := make(chan Message, 16)

	go func() {
		defer close(j.exited)
		defer close(msgs)

		// The previous worker shares the working directory; let it clean up first.
		if prev != nil {
			<-prev.exited
		}

		frames, err := c.gen.Generate(ctx, j.Request, func(p weather.Progress) {
			msgs <- ProgressMessage{JobID: j.ID, Progress: p}
		})
		if err != nil {
			msgs <- ErrorMessage{
				JobID:     j.ID,
				Err:       err,
				Message:   err.Error(),
				Cancelled: errors.Is(err, weather.ErrCancelled),
			}
			return
		}
		msgs <- ResultMessage{JobID: j.ID, Frames: frames}
	}()

	for m := range msgs {
		c.handle(j, m)
	}
	j.cancel()
}

func (c *Controller) handle(j *Job, m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	detached := j.detached.Load()

	switch msg := m.(type) {
	case ProgressMessage:
		if detached {
			return
		}
		c.latest = append(c.latest, msg.Progress)
		c.broadcastLocked(msg)

	case ResultMessage:
		if !j.finish(StateDone, msg.Frames, nil) || detached {
			return
		}
		log.Printf("controller: job %s finished with %d frames", j.ID, len(msg.Frames))
		c.save(j)
		c.broadcastLocked(msg)

	case ErrorMessage:
		state := StateFailed
		if msg.Cancelled {
			state = StateCancelled
		}
		if !j.finish(state, nil, msg.Err) || detached {
			return
		}
		if msg.Cancelled {
			log.Printf("controller: job %s cancelled", j.ID)
		} else {
			log.Printf("ERROR: controller: job %s failed: %v", j.ID, msg.Err)
		}
		c.save(j)
		c.broadcastLocked(msg)
	}
}

// Cancel asks the running job to stop at its next cancellation point.
// The job then reports a final cancelled update and rejects.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	j := c.current
	if j == nil || j.State() != StateRunning {
		return ErrNoJob
	}
	j.cancel()
	return nil
}

// Terminate abandons the running job immediately: its outcome is settled as
// cancelled and anything it reports afterwards is discarded.
func (c *Controller) Terminate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	j := c.current
	if j == nil || j.State() != StateRunning {
		return ErrNoJob
	}
	c.terminateLocked(j)
	return nil
}

func (c *Controller) terminateLocked(j *Job) {
	j.detached.Store(true)
	j.cancel()

	err := weather.ErrCancelled
	if !j.finish(StateCancelled, nil, err) {
		return
	}
	c.save(j)

	final := weather.Progress{InProgress: false, Percent: 100, Message: cancelledMessage, Time: time.Now().UTC()}
	c.latest = append(c.latest, final)
	c.broadcastLocked(ProgressMessage{JobID: j.ID, Progress: final})
	c.broadcastLocked(ErrorMessage{JobID: j.ID, Err: err, Message: err.Error(), Cancelled: true})
}

// Current returns the most recently started job, or nil.
func (c *Controller) Current() *Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// LatestProgress returns the progress updates of the current job so far.
func (c *Controller) LatestProgress() []weather.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]weather.Progress, len(c.latest))
	copy(out, c.latest)
	return out
}

func (c *Controller) save(j *Job) {
	if c.recorder != nil {
		c.recorder.Save(j.Record())
	}
}
