//go:build !linux

package hostmem

import "os"

// Probe reports the page size only; the memory size is not available here.
func Probe() (Info, error) {
	return Info{PageSize: uint64(os.Getpagesize())}, ErrUnsupported
}
