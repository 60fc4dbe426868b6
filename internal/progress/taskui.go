package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/gridconnect/gridconnect/internal/models"
)

// taskScale is the bar resolution; server progress is a fraction in [0, 1].
const taskScale = 1000

// TaskUI shows the state of one remote task while it is polled.
type TaskUI struct {
	w       io.Writer
	label   string
	started time.Time

	progress *mpb.Progress
	bar      *mpb.Bar

	mu    sync.Mutex
	state models.TaskState
	step  string
	done  bool
}

// NewTaskUI returns a task display writing to w. When enabled is false, state
// changes are written as plain lines.
func NewTaskUI(w io.Writer, label string, enabled bool) *TaskUI {
	u := &TaskUI{w: w, label: label, started: time.Now()}
	if !enabled {
		return u
	}
	if f, ok := w.(*os.File); ok {
		enableANSI(f)
	}

	u.progress = mpb.New(
		mpb.WithOutput(w),
		mpb.WithRefreshRate(300*time.Millisecond),
		mpb.WithWidth(60),
	)
	u.bar = u.progress.New(taskScale,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(label, decor.WCSyncSpaceR),
			decor.Any(func(decor.Statistics) string { return u.describe() }, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncSpace),
			decor.Name("  "),
			decor.Elapsed(decor.ET_STYLE_GO),
		),
	)
	return u
}

func (u *TaskUI) describe() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.step != "" {
		return fmt.Sprintf("%s (%s)", u.state, u.step)
	}
	return string(u.state)
}

// Update records a polled status.
func (u *TaskUI) Update(status *models.TaskStatus) {
	if status == nil {
		return
	}

	u.mu.Lock()
	if u.done {
		u.mu.Unlock()
		return
	}
	changed := status.TaskState != u.state
	u.state = status.TaskState
	u.step = status.CurrentStep
	u.mu.Unlock()

	if u.bar == nil {
		if changed {
			fmt.Fprintf(u.w, "%s: %s\n", u.label, status.TaskState)
		}
		return
	}
	u.bar.SetCurrent(int64(clamp(status.Progress) * taskScale))
}

// Done closes the display. final may be nil when polling ended in an error.
func (u *TaskUI) Done(final *models.TaskStatus) {
	u.mu.Lock()
	if u.done {
		u.mu.Unlock()
		return
	}
	u.done = true
	u.mu.Unlock()

	if u.bar != nil {
		if final != nil && final.TaskState == models.TaskComplete {
			u.bar.SetCurrent(taskScale)
			u.bar.SetTotal(taskScale, true)
		} else {
			u.bar.Abort(false)
		}
		u.progress.Wait()
	}

	elapsed := time.Since(u.started).Round(time.Second)
	if final == nil {
		fmt.Fprintf(u.w, "%s: stopped after %s\n", u.label, elapsed)
		return
	}
	fmt.Fprintf(u.w, "%s: %s after %s\n", u.label, final.TaskState, elapsed)
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
