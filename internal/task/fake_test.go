package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gridconnect/gridconnect/internal/models"
	"github.com/gridconnect/gridconnect/internal/retry"
)

// step is one scripted status response.
type step struct {
	state  models.TaskState
	result *models.TaskResult
	err    error
}

// fakeEndpoint replays a status script; the last step repeats. After CancelTask it
// reports CANCELLING twice, then CANCELLED.
type fakeEndpoint struct {
	mu sync.Mutex

	kind     Kind
	objectID string
	script   []step

	created     int
	polls       int
	cancels     int
	cancelled   bool
	sinceCancel int
	cancelErr   error
}

func newFakeEndpoint(kind Kind, objectID string, script ...step) *fakeEndpoint {
	return &fakeEndpoint{kind: kind, objectID: objectID, script: script}
}

func (f *fakeEndpoint) Kind() Kind       { return f.kind }
func (f *fakeEndpoint) ObjectID() string { return f.objectID }

func (f *fakeEndpoint) CreateTask(ctx context.Context, params models.TaskParameters) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return "T1", nil
}

func (f *fakeEndpoint) TaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++

	if f.cancelled {
		f.sinceCancel++
		if f.sinceCancel <= 2 {
			return &models.TaskStatus{TaskID: taskID, TaskState: models.TaskCancelling}, nil
		}
		return &models.TaskStatus{TaskID: taskID, TaskState: models.TaskCancelled,
			CancelledBy: &models.Actor{ID: "u1", Name: "gridconnect"}}, nil
	}

	i := f.polls - 1
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	s := f.script[i]
	if s.err != nil {
		return nil, s.err
	}
	return &models.TaskStatus{TaskID: taskID, TaskState: s.state, Result: s.result}, nil
}

func (f *fakeEndpoint) CancelTask(ctx context.Context, taskID string) (*models.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	f.cancelled = true
	return &models.TaskStatus{TaskID: taskID, TaskState: models.TaskCancelling}, nil
}

func (f *fakeEndpoint) DumpChunks(ctx context.Context, taskID string) ([]models.ChunkSlot, error) {
	return nil, errors.New("not scripted")
}

func (f *fakeEndpoint) NestedDumpChunks(ctx context.Context, taskID, nestedID string) ([]models.ChunkSlot, error) {
	return nil, errors.New("not scripted")
}

func (f *fakeEndpoint) DumpChunk(ctx context.Context, taskID, nestedID, chunkID string) ([]byte, error) {
	return nil, errors.New("not scripted")
}

func (f *fakeEndpoint) counts() (polls, cancels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls, f.cancels
}

// fakeClock is advanced by every sleep.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

var testPolicy = retry.Policy{MaxRetries: 3, Base: time.Second, Multiplier: 1.5, Cap: 10 * time.Second}

// newTestRunner returns a runner on a fake clock whose sleeps return at once.
func newTestRunner(tracker *Tracker) (*Runner, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	r := NewRunner(tracker, nil, RunnerOptions{Policy: testPolicy})
	r.now = clock.Now
	r.sleep = clock.Sleep
	return r, clock
}

// briefSleep waits a millisecond per call so that interrupts can land.
func briefSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Millisecond):
		return nil
	}
}

// fakeTaskService records dump requests made through a real endpoint.
type fakeTaskService struct {
	mu       sync.Mutex
	requests []string
}

func (s *fakeTaskService) record(r string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r)
}

func (s *fakeTaskService) CreateTask(ctx context.Context, collection, objectID string, params models.TaskParameters) (string, error) {
	s.record("create " + collection + "/" + objectID + " " + params.LocaleName)
	return "T9", nil
}

func (s *fakeTaskService) GetTaskStatus(ctx context.Context, collection, objectID, taskID string) (*models.TaskStatus, error) {
	s.record("status " + collection + "/" + objectID + "/" + taskID)
	return &models.TaskStatus{TaskID: taskID, TaskState: models.TaskComplete}, nil
}

func (s *fakeTaskService) CancelTask(ctx context.Context, collection, objectID, taskID string) (*models.TaskStatus, error) {
	s.record("cancel " + collection + "/" + objectID + "/" + taskID)
	return nil, nil
}

func (s *fakeTaskService) ListDumpChunks(ctx context.Context, collection, objectID, taskID, nestedID string) ([]models.ChunkSlot, error) {
	s.record("list " + collection + "/" + objectID + "/" + taskID + "/" + nestedID)
	return []models.ChunkSlot{{ID: "0"}, {ID: "1"}}, nil
}

func (s *fakeTaskService) FetchDumpChunk(ctx context.Context, collection, objectID, taskID, nestedID, chunkID string) ([]byte, error) {
	s.record("fetch " + collection + "/" + objectID + "/" + taskID + "/" + nestedID + "/" + chunkID)
	return []byte("row error " + nestedID + " " + chunkID + "\n"), nil
}
