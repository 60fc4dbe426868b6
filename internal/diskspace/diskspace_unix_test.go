//go:build linux || darwin || freebsd

package diskspace

import (
	"errors"
	"os"
	"syscall"
	"testing"
)

func TestWriterConvertsNoSpace(t *testing.T) {
	enospc := &os.PathError{Op: "write", Path: "out.csv", Err: syscall.ENOSPC}
	w := NewWriter(&failingWriter{accept: 10, err: enospc}, "out.csv")

	n, err := w.Write(make([]byte, 16))
	if n != 10 {
		t.Errorf("n = %d, want 10", n)
	}

	var spaceErr *InsufficientSpaceError
	if !errors.As(err, &spaceErr) {
		t.Fatalf("expected InsufficientSpaceError, got %T: %v", err, err)
	}
	if spaceErr.Path != "out.csv" || spaceErr.RequiredBytes != 16 {
		t.Errorf("error = %+v", spaceErr)
	}
	if !errors.Is(err, syscall.ENOSPC) {
		t.Error("ENOSPC should stay reachable through Unwrap")
	}
}

func TestIsNoSpace(t *testing.T) {
	if !isNoSpace(syscall.ENOSPC) || !isNoSpace(syscall.EDQUOT) {
		t.Error("ENOSPC and EDQUOT are disk-full errors")
	}
	if isNoSpace(syscall.EACCES) {
		t.Error("EACCES is not a disk-full error")
	}
}
