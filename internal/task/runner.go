// Package task drives remote jobs (imports, exports, actions, processes) from
// creation to a terminal state and unwraps their results.
package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridconnect/gridconnect/internal/constants"
	"github.com/gridconnect/gridconnect/internal/logging"
	"github.com/gridconnect/gridconnect/internal/models"
	"github.com/gridconnect/gridconnect/internal/retry"
)

var (
	// ErrServerUnreachable ends a run after too many consecutive status failures.
	ErrServerUnreachable = errors.New("server cannot now be reached")
	// ErrInterrupted ends a run whose process is shutting down.
	ErrInterrupted = errors.New("task run interrupted")
)

// Outcome is how a run ended. A cancelled or unsuccessful job is a normal outcome.
type Outcome struct {
	Handle Handle
	RunID  string
	Status *models.TaskStatus
	// Tree is nil when the server reported no result.
	Tree *ResultTree
}

// Cancelled reports whether the job ended cancelled.
func (o *Outcome) Cancelled() bool {
	return o.Status != nil && o.Status.TaskState == models.TaskCancelled
}

// Successful reports whether the job completed and its result says so.
func (o *Outcome) Successful() bool {
	return o.Status != nil && o.Status.TaskState == models.TaskComplete && o.Tree != nil && o.Tree.Root.Successful
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// Policy sets the wait between failed status fetches.
	Policy retry.Policy
	// Locale is sent when the task parameters carry none.
	Locale string
	// OnStatus, if set, sees every successfully fetched snapshot.
	OnStatus func(h Handle, status *models.TaskStatus)
}

// Runner creates tasks and polls them until they finish. Polling blocks the calling
// goroutine.
type Runner struct {
	tracker  *Tracker
	policy   retry.Policy
	locale   string
	onStatus func(Handle, *models.TaskStatus)
	logger   *logging.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a runner that registers its tasks with tracker.
func NewRunner(tracker *Tracker, logger *logging.Logger, opts RunnerOptions) *Runner {
	if tracker == nil {
		tracker = NewTracker()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	policy := opts.Policy
	if policy.Base <= 0 {
		policy = retry.DefaultPolicy()
	}
	locale := opts.Locale
	if locale == "" {
		locale = constants.DefaultLocale
	}
	return &Runner{
		tracker:  tracker,
		policy:   policy,
		locale:   locale,
		onStatus: opts.OnStatus,
		logger:   logger,
		now:      time.Now,
		sleep:    retry.SleepContext,
	}
}

// Run creates a task on ep and blocks until it is COMPLETE or CANCELLED.
// Errors are reserved for runs that could not be observed to the end.
func (r *Runner) Run(ctx context.Context, ep Endpoint, params models.TaskParameters) (*Outcome, error) {
	if ep.ObjectID() == "" {
		return nil, fmt.Errorf("%s id is required", ep.Kind())
	}
	if params.LocaleName == "" {
		params.LocaleName = r.locale
	}

	runID := uuid.NewString()
	log := r.logger.WithField("run_id", runID)

	taskID, err := ep.CreateTask(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s task for %s: %w", ep.Kind(), ep.ObjectID(), err)
	}
	h := Handle{Kind: ep.Kind(), ObjectID: ep.ObjectID(), TaskID: taskID}
	log.Info().Str("task", taskID).Msgf("Started %s %s", h.Kind, h.ObjectID)

	release, closing, err := r.tracker.track(&runningTask{handle: h, endpoint: ep, runner: r, logger: log})
	if err != nil {
		return nil, err
	}
	defer release()

	var status *models.TaskStatus
	if closing {
		// Shutdown began before the task could be tracked.
		status, err = r.cancelAndWait(context.WithoutCancel(ctx), ep, h, log)
		if err != nil {
			return nil, err
		}
		return r.outcome(h, runID, status, ep), ErrInterrupted
	}

	status, err = r.poll(ctx, ep, h, false, log)
	if err != nil {
		return nil, err
	}

	out := r.outcome(h, runID, status, ep)
	log.Info().
		Str("state", string(status.TaskState)).
		Bool("successful", out.Successful()).
		Msgf("Finished %s", h)
	return out, nil
}

func (r *Runner) outcome(h Handle, runID string, status *models.TaskStatus, ep Endpoint) *Outcome {
	out := &Outcome{Handle: h, RunID: runID, Status: status}
	if status.Result != nil {
		out.Tree = BuildTree(ep, h.TaskID, status.Result)
	}
	return out
}

// cancelAndWait requests cancellation and polls until terminal. It cannot be
// interrupted: it is what an interrupt leads to.
func (r *Runner) cancelAndWait(ctx context.Context, ep Endpoint, h Handle, log *logging.Logger) (*models.TaskStatus, error) {
	log.Warnf("Cancelling %s", h)
	if _, err := ep.CancelTask(ctx, h.TaskID); err != nil {
		// The task may have finished on its own; polling tells.
		log.Warnf("Cancel request for task %s failed: %v", h.TaskID, err)
	}
	return r.poll(ctx, ep, h, true, log)
}

// poll fetches status until a terminal state. Consecutive fetch failures are tolerated
// up to MaxStatusFailures. Unless alreadyClosing, shutdown interrupts the loop.
func (r *Runner) poll(ctx context.Context, ep Endpoint, h Handle, alreadyClosing bool, log *logging.Logger) (*models.TaskStatus, error) {
	schedule := NewPollSchedule(r.now)
	fails := 0

	for {
		if !alreadyClosing && r.tracker.Closing() {
			return nil, ErrInterrupted
		}

		status, err := ep.TaskStatus(ctx, h.TaskID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			fails++
			if fails > constants.MaxStatusFailures {
				return nil, fmt.Errorf("%w: %d status requests for task %s failed, last error: %w",
					ErrServerUnreachable, fails, h.TaskID, err)
			}
			wait := r.policy.Interval(fails - 1)
			log.Warn().
				Err(err).
				Str("error_type", retry.ErrorTypeName(retry.Classify(err))).
				Int("failures", fails).
				Dur("retry_in", wait).
				Msgf("Status request for task %s failed", h.TaskID)
			if err := r.wait(ctx, wait, !alreadyClosing); err != nil {
				return nil, err
			}
			continue
		}
		fails = 0

		log.Debug().
			Str("state", string(status.TaskState)).
			Float64("progress", status.Progress).
			Str("step", status.CurrentStep).
			Msgf("Task %s", h.TaskID)
		if r.onStatus != nil {
			r.onStatus(h, status)
		}
		if status.TaskState.Terminal() {
			if status.CancelledBy != nil {
				log.Info().Str("cancelled_by", status.CancelledBy.Name).Msgf("Task %s was cancelled", h.TaskID)
			}
			return status, nil
		}

		if err := r.wait(ctx, schedule.Next(), !alreadyClosing); err != nil {
			return nil, err
		}
	}
}

// wait sleeps for d. An interruptible wait ends early with ErrInterrupted when
// shutdown begins.
func (r *Runner) wait(ctx context.Context, d time.Duration, interruptible bool) error {
	if !interruptible {
		return r.sleep(ctx, d)
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.tracker.Interrupted():
			cancel()
		case <-sctx.Done():
		}
	}()

	err := r.sleep(sctx, d)
	if r.tracker.Closing() {
		return ErrInterrupted
	}
	return err
}
