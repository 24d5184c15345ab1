package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/weather-heatmap/internal/store"
	"github.com/i474232898/weather-heatmap/internal/weather"
)

// fakeGenerator reports one update and then either waits for release or
// cancellation.
type fakeGenerator struct {
	mu       sync.Mutex
	started  chan string
	release  chan struct{}
	frames   []weather.Frame
	err      error
	ignoreCx bool
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		started: make(chan string, 10),
		release: make(chan struct{}),
	}
}

func (f *fakeGenerator) Generate(ctx context.Context, req weather.JobRequest, report weather.Reporter) ([]weather.Frame, error) {
	tr := weather.NewTracker(2, report)
	tr.Step("Request 1 of 1 succeeded")
	f.started <- req.ConditionID

	if f.ignoreCx {
		<-f.release
	} else {
		select {
		case <-ctx.Done():
			tr.Finish("Cancelled by user.")
			return nil, weather.ErrCancelled
		case <-f.release:
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		tr.Finish("Image generation failed")
		return nil, f.err
	}
	tr.Finish("Finished creating images")
	return f.frames, nil
}

func waitDone(t *testing.T, j *Job) ([]weather.Frame, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frames, err := j.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("job %s did not finish", j.ID)
	}
	return frames, err
}

func waitStarted(t *testing.T, gen *fakeGenerator) {
	t.Helper()
	select {
	case <-gen.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("generator was not started")
	}
}

func TestControllerRunsJobToCompletion(t *testing.T) {
	gen := newFakeGenerator()
	gen.frames = []weather.Frame{{Index: 0, Path: "/tmp/weather_image_0.png"}}
	jobs := store.NewMemoryStore(10, 0)
	ctrl := NewController(gen, jobs)
	events := ctrl.Subscribe("client")

	j := ctrl.Start(weather.JobRequest{ConditionID: "cloud_cover"})
	waitStarted(t, gen)
	close(gen.release)

	frames, err := waitDone(t, j)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || j.State() != StateDone {
		t.Fatalf("unexpected outcome: %d frames, state %s", len(frames), j.State())
	}

	// The consumer loop saves after settling the job.
	deadline := time.After(2 * time.Second)
	for {
		rec, err := jobs.Get(j.ID)
		if err == nil && rec.State == string(StateDone) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job record not stored as done: %+v", rec)
		case <-time.After(10 * time.Millisecond):
		}
	}

	var sawResult bool
	timeout := time.After(2 * time.Second)
	for !sawResult {
		select {
		case m := <-events:
			if m.Job() != j.ID {
				t.Fatalf("message for unexpected job %s", m.Job())
			}
			if _, ok := m.(ResultMessage); ok {
				sawResult = true
			}
		case <-timeout:
			t.Fatalf("no result message received")
		}
	}

	progress := ctrl.LatestProgress()
	if len(progress) != 2 || progress[1].Percent != 100 || progress[1].InProgress {
		t.Fatalf("unexpected progress buffer %+v", progress)
	}
}

func TestControllerFailure(t *testing.T) {
	gen := newFakeGenerator()
	gen.err = errors.New("boom")
	ctrl := NewController(gen, nil)

	j := ctrl.Start(weather.JobRequest{})
	waitStarted(t, gen)
	close(gen.release)

	if _, err := waitDone(t, j); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
	if j.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", j.State())
	}
}

func TestControllerCancel(t *testing.T) {
	gen := newFakeGenerator()
	ctrl := NewController(gen, nil)

	if err := ctrl.Cancel(); !errors.Is(err, ErrNoJob) {
		t.Fatalf("expected ErrNoJob without a job, got %v", err)
	}

	j := ctrl.Start(weather.JobRequest{})
	waitStarted(t, gen)
	if err := ctrl.Cancel(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := waitDone(t, j); !errors.Is(err, weather.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if j.State() != StateCancelled {
		t.Fatalf("expected cancelled state, got %s", j.State())
	}
	if ctrl.Current().State() == StateRunning {
		t.Fatalf("expected no running job")
	}
}

func TestControllerTerminateIgnoresLateResult(t *testing.T) {
	gen := newFakeGenerator()
	gen.ignoreCx = true
	gen.frames = []weather.Frame{{Index: 0}}
	ctrl := NewController(gen, nil)
	events := ctrl.Subscribe("client")

	j := ctrl.Start(weather.JobRequest{})
	waitStarted(t, gen)
	if err := ctrl.Terminate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Settled immediately although the worker is still busy.
	if _, err := waitDone(t, j); !errors.Is(err, weather.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}

	close(gen.release)
	<-j.exited

	if j.State() != StateCancelled {
		t.Fatalf("late result must not change the outcome, state %s", j.State())
	}

	var sawError bool
	for len(events) > 0 {
		switch m := (<-events).(type) {
		case ResultMessage:
			t.Fatalf("unexpected result after terminate")
		case ErrorMessage:
			sawError = m.Cancelled
		}
	}
	if !sawError {
		t.Fatalf("expected a cancelled error message")
	}
	last := ctrl.LatestProgress()
	if final := last[len(last)-1]; final.InProgress || final.Message != "Cancelled by user." {
		t.Fatalf("unexpected final progress %+v", final)
	}
}

func TestControllerNewJobSupersedesRunning(t *testing.T) {
	gen := newFakeGenerator()
	ctrl := NewController(gen, nil)

	first := ctrl.Start(weather.JobRequest{ConditionID: "first"})
	waitStarted(t, gen)

	second := ctrl.Start(weather.JobRequest{ConditionID: "second"})
	if _, err := waitDone(t, first); !errors.Is(err, weather.ErrCancelled) {
		t.Fatalf("expected first job cancelled, got %v", err)
	}

	select {
	case id := <-gen.started:
		if id != "second" {
			t.Fatalf("unexpected job started: %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second job was not started")
	}
	if ctrl.Current() != second {
		t.Fatalf("expected second job to be current")
	}

	close(gen.release)
	if _, err := waitDone(t, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListeners(t *testing.T) {
	ctrl := NewController(newFakeGenerator(), nil)

	old := ctrl.Subscribe("a")
	ctrl.Subscribe("a")
	if _, ok := <-old; ok {
		t.Fatalf("expected the replaced channel to be closed")
	}
	ctrl.Subscribe("b")
	if n := ctrl.ListenerCount(); n != 2 {
		t.Fatalf("expected 2 listeners, got %d", n)
	}

	ctrl.Unsubscribe("b", ctrl.Subscribe("b"))
	if n := ctrl.ListenerCount(); n != 1 {
		t.Fatalf("expected 1 listener, got %d", n)
	}
}

func TestReconnectKeepsNewListener(t *testing.T) {
	ctrl := NewController(newFakeGenerator(), nil)

	first := ctrl.Subscribe("client")
	second := ctrl.Subscribe("client")

	// The first stream notices its channel was closed and cleans up.
	ctrl.Unsubscribe("client", first)

	if n := ctrl.ListenerCount(); n != 1 {
		t.Fatalf("expected the reconnected listener to stay, got %d listeners", n)
	}
	ctrl.mu.Lock()
	ctrl.broadcastLocked(ProgressMessage{JobID: "j"})
	ctrl.mu.Unlock()

	select {
	case m, ok := <-second:
		if !ok || m.Job() != "j" {
			t.Fatalf("expected a message on the new channel, got %v (open=%v)", m, ok)
		}
	default:
		t.Fatalf("new listener received nothing")
	}

	ctrl.Unsubscribe("client", second)
	if _, ok := <-second; ok {
		t.Fatalf("expected the channel to be closed after unsubscribe")
	}
}

func TestFollowReplaysWithoutDuplicates(t *testing.T) {
	gen := newFakeGenerator()
	ctrl := NewController(gen, nil)

	j := ctrl.Start(weather.JobRequest{})
	waitStarted(t, gen)

	// Wait until the first update reached the buffer.
	deadline := time.After(2 * time.Second)
	for len(ctrl.LatestProgress()) == 0 {
		select {
		case <-deadline:
			t.Fatalf("no progress recorded")
		case <-time.After(5 * time.Millisecond):
		}
	}

	ch, replay := ctrl.Follow("late")
	if len(replay) != 1 || replay[0].Job() != j.ID {
		t.Fatalf("unexpected replay %+v", replay)
	}

	close(gen.release)
	if _, err := waitDone(t, j); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var progress int
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case m := <-ch:
			switch m.(type) {
			case ProgressMessage:
				progress++
			case ResultMessage:
				done = true
			}
		case <-timeout:
			t.Fatalf("no result message received")
		}
	}
	// Only the final update follows the replayed one.
	if progress != 1 {
		t.Fatalf("expected 1 live progress message, got %d", progress)
	}
}

func TestStartIfIdle(t *testing.T) {
	gen := newFakeGenerator()
	ctrl := NewController(gen, nil)

	j := ctrl.Start(weather.JobRequest{ConditionID: "user"})
	waitStarted(t, gen)

	if _, ok := ctrl.StartIfIdle(weather.JobRequest{ConditionID: "refresh"}); ok {
		t.Fatalf("expected no start while a job runs")
	}
	if ctrl.Current() != j || j.State() != StateRunning {
		t.Fatalf("running job must not be superseded")
	}

	close(gen.release)
	if _, err := waitDone(t, j); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, ok := ctrl.StartIfIdle(weather.JobRequest{ConditionID: "refresh"})
	if !ok || id == "" {
		t.Fatalf("expected a job to start when idle")
	}
	waitStarted(t, gen)
	if _, err := waitDone(t, ctrl.Current()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBroadcastDropsOldestWhenFull(t *testing.T) {
	ctrl := NewController(newFakeGenerator(), nil)
	ch := ctrl.Subscribe("slow")

	ctrl.mu.Lock()
	for i := 0; i < listenerBuffer; i++ {
		ctrl.broadcastLocked(ProgressMessage{JobID: "j"})
	}
	ctrl.broadcastLocked(ErrorMessage{JobID: "j", Cancelled: true})
	ctrl.mu.Unlock()

	var last Message
	for len(ch) > 0 {
		last = <-ch
	}
	if _, ok := last.(ErrorMessage); !ok {
		t.Fatalf("expected the terminal message to be kept, got %T", last)
	}
}
