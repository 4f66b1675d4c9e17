//go:build linux

package device

import "golang.org/x/sys/unix"

// SystemMemory returns the physical memory of the machine in bytes.
func SystemMemory() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil || info.Totalram == 0 {
		return fallbackMemory
	}
	return uint64(info.Totalram) * uint64(info.Unit)
}
