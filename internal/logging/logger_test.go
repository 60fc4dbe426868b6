package logging

import (
	"bytes"
	"strings"
	"testing"
)

// TestLoggerWritesToOutput verifies messages land on the configured writer.
func TestLoggerWritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Infof("uploaded %d chunks", 3)

	if !strings.Contains(buf.String(), "uploaded 3 chunks") {
		t.Errorf("expected message in output, got %q", buf.String())
	}
}

// TestWithFieldTagsEvents verifies the field is carried on child logger events.
func TestWithFieldTagsEvents(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf).WithField("run_id", "abc123")

	l.Info().Msg("polling")

	out := buf.String()
	if !strings.Contains(out, "run_id=") || !strings.Contains(out, "abc123") {
		t.Errorf("expected run_id field in output, got %q", out)
	}
}

// TestNopDiscards verifies the nop logger accepts calls without output.
func TestNopDiscards(t *testing.T) {
	l := NewNop()
	l.Warnf("ignored %s", "message")
	l.Error().Msg("ignored")
}
