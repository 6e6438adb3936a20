//go:build linux

package hostmem

import (
	"golang.org/x/sys/unix"
)

// Probe reads the physical memory size with sysinfo(2).
func Probe() (Info, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return Info{}, err
	}
	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	return Info{
		TotalRAM: uint64(si.Totalram) * unit,
		PageSize: uint64(unix.Getpagesize()),
	}, nil
}
