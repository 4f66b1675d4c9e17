package device

import (
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

// fallbackMemory is assumed when the OS does not report physical memory.
const fallbackMemory = 16 << 30

// Info describes the compute device kernels run on.
type Info struct {
	Name     string
	Cores    int
	Memory   uint64   // physical memory in bytes
	Features []string // vector instruction sets
}

// String formats the info for log lines and CLI output.
func (i Info) String() string {
	feat := "scalar"
	if len(i.Features) > 0 {
		feat = strings.Join(i.Features, ",")
	}
	return i.Name + " (" + runtime.GOARCH + ", " + feat + ")"
}

// DeviceInfo reports the host CPU acting as the accelerator.
func DeviceInfo() Info {
	return Info{
		Name:     "cpu",
		Cores:    runtime.NumCPU(),
		Memory:   SystemMemory(),
		Features: cpuFeatures(),
	}
}

// Info reports the device backing this manager.
func (m *Manager) Info() Info {
	return DeviceInfo()
}

func cpuFeatures() []string {
	var f []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasSSE41 {
			f = append(f, "SSE4.1")
		}
		if cpu.X86.HasAVX {
			f = append(f, "AVX")
		}
		if cpu.X86.HasAVX2 {
			f = append(f, "AVX2")
		}
		if cpu.X86.HasFMA {
			f = append(f, "FMA")
		}
		if cpu.X86.HasAVX512F {
			f = append(f, "AVX512F")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			f = append(f, "ASIMD")
		}
		if cpu.ARM64.HasFPHP {
			f = append(f, "FPHP")
		}
		if cpu.ARM64.HasSVE {
			f = append(f, "SVE")
		}
	}
	return f
}
