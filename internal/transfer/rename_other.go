//go:build !unix && !windows

package transfer

func isCrossDevice(err error) bool {
	return false
}
