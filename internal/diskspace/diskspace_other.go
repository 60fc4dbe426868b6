//go:build !linux && !darwin && !freebsd && !windows

package diskspace

func availableBytes(dir string) (int64, bool) {
	return 0, false
}

func isNoSpace(err error) bool {
	return false
}
