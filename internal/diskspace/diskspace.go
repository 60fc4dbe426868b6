// Package diskspace checks free space on the filesystem holding a download target
// and turns "disk full" write failures into a typed error.
package diskspace

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
)

// InsufficientSpaceError indicates that there is not enough disk space available.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
	Err            error
}

func (e *InsufficientSpaceError) Error() string {
	requiredMB := float64(e.RequiredBytes) / (1024 * 1024)
	availableMB := float64(e.AvailableBytes) / (1024 * 1024)
	return fmt.Sprintf("insufficient disk space for %s: need %.2f MB, have %.2f MB available",
		e.Path, requiredMB, availableMB)
}

func (e *InsufficientSpaceError) Unwrap() error { return e.Err }

// IsInsufficientSpaceError reports whether err, or any error it wraps, is an
// InsufficientSpaceError.
func IsInsufficientSpaceError(err error) bool {
	var target *InsufficientSpaceError
	return errors.As(err, &target)
}

// CheckAvailableSpace returns an InsufficientSpaceError when the filesystem that will
// hold targetPath has less than requiredBytes*safetyMargin free. If the free space
// cannot be determined the check passes and the write is left to fail on its own.
func CheckAvailableSpace(targetPath string, requiredBytes int64, safetyMargin float64) error {
	available, ok := availableBytes(filepath.Dir(targetPath))
	if !ok {
		return nil
	}

	requiredWithMargin := int64(float64(requiredBytes) * safetyMargin)
	if available < requiredWithMargin {
		return &InsufficientSpaceError{
			Path:           targetPath,
			RequiredBytes:  requiredWithMargin,
			AvailableBytes: available,
		}
	}
	return nil
}

// GetAvailableSpace returns the available space in bytes for the filesystem
// containing the given path. Returns 0 if unable to determine.
func GetAvailableSpace(path string) int64 {
	n, _ := availableBytes(filepath.Dir(path))
	return n
}

// Writer counts bytes written to a file and reports a full disk as an
// InsufficientSpaceError instead of a bare errno.
type Writer struct {
	w       io.Writer
	path    string
	written int64
}

// NewWriter wraps w, which writes to the file at path.
func NewWriter(w io.Writer, path string) *Writer {
	return &Writer{w: w, path: path}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.written += int64(n)
	if err != nil && isNoSpace(err) {
		return n, &InsufficientSpaceError{
			Path:           w.path,
			RequiredBytes:  w.written + int64(len(p)-n),
			AvailableBytes: GetAvailableSpace(w.path),
			Err:            err,
		}
	}
	return n, err
}

// Written returns the number of bytes accepted so far.
func (w *Writer) Written() int64 {
	return w.written
}
