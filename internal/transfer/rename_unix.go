//go:build unix

package transfer

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isCrossDevice reports whether a rename failed because source and target live on
// different file systems.
func isCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}
