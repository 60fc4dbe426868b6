package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gridconnect/gridconnect/internal/logging"
)

// ErrTaskRunning is returned when a second task is started while one is tracked.
var ErrTaskRunning = errors.New("another task is already running")

// runningTask is the tracked task plus what is needed to cancel it.
type runningTask struct {
	handle   Handle
	endpoint Endpoint
	runner   *Runner
	logger   *logging.Logger
}

// Tracker owns the single "currently running task" of the process. Starting and
// clearing tracking share one lock with CancelRunning, so a shutdown cancel cannot
// race a run that is finishing normally.
type Tracker struct {
	mu      sync.Mutex
	running *runningTask

	closing   atomic.Bool
	interrupt chan struct{}
	once      sync.Once
}

// NewTracker creates an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{interrupt: make(chan struct{})}
}

// Closing reports whether shutdown has begun. Once set it stays set.
func (t *Tracker) Closing() bool {
	return t.closing.Load()
}

// Interrupted is closed when shutdown begins.
func (t *Tracker) Interrupted() <-chan struct{} {
	return t.interrupt
}

// Running returns the tracked task, if any.
func (t *Tracker) Running() (Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running == nil {
		return Handle{}, false
	}
	return t.running.handle, true
}

// track makes rt the running task. When shutdown has already begun nothing is tracked
// and closing is true; the caller must then cancel the task itself.
func (t *Tracker) track(rt *runningTask) (release func(), closing bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closing.Load() {
		return func() {}, true, nil
	}
	if t.running != nil {
		return nil, false, fmt.Errorf("%w: %s", ErrTaskRunning, t.running.handle)
	}
	t.running = rt

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.running == rt {
			t.running = nil
		}
	}, false, nil
}

// CancelRunning is the shutdown path. It marks the process as closing down, interrupts
// the polling run, asks the server to cancel the tracked task and then polls it as an
// already-closing invocation until a terminal state is reached.
func (t *Tracker) CancelRunning(ctx context.Context) error {
	t.closing.Store(true)
	t.once.Do(func() { close(t.interrupt) })

	t.mu.Lock()
	defer t.mu.Unlock()

	rt := t.running
	if rt == nil {
		return nil
	}

	status, err := rt.runner.cancelAndWait(ctx, rt.endpoint, rt.handle, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to cancel %s: %w", rt.handle, err)
	}
	rt.logger.Info().Str("state", string(status.TaskState)).Msgf("Task %s stopped", rt.handle.TaskID)
	return nil
}
