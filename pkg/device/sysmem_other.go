//go:build !linux

package device

// SystemMemory returns the physical memory of the machine in bytes. Outside
// Linux the OS is not queried and a fixed estimate is returned.
func SystemMemory() uint64 {
	return fallbackMemory
}
