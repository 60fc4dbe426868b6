// Package progress renders chunk transfer and remote task progress on the terminal.
// Bars are only drawn when the output is a terminal; otherwise a few plain lines
// are written instead.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Bar counts transferred bytes. It is safe for concurrent use by chunk workers.
type Bar struct {
	bar         *progressbar.ProgressBar
	transferred atomic.Int64
}

// NewBar returns a byte counter for a transfer of total bytes; total < 0 means
// unknown. Nothing is drawn unless enabled.
func NewBar(w io.Writer, total int64, description string, enabled bool) *Bar {
	b := &Bar{}
	if !enabled {
		return b
	}
	if f, ok := w.(*os.File); ok {
		enableANSI(f)
	}
	b.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
	return b
}

// Add records n more bytes.
func (b *Bar) Add(n int) error {
	b.transferred.Add(int64(n))
	if b.bar == nil {
		return nil
	}
	return b.bar.Add(n)
}

// Transferred returns the bytes recorded so far.
func (b *Bar) Transferred() int64 {
	return b.transferred.Load()
}

// Finish completes the bar.
func (b *Bar) Finish() {
	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

// Abandon leaves the bar where it stopped, for failed transfers.
func (b *Bar) Abandon() {
	if b.bar != nil {
		_ = b.bar.Exit()
	}
}
