// Package platform maps the host operating system to the measurement commands
// used for each metric group.
package platform

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedPlatform is returned by Resolve for operating systems without
// a command set.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Family identifies a group of platforms sharing command syntax and output format.
type Family string

const (
	FamilyWindows Family = "windows"
	FamilyLinux   Family = "linux"
)

// GPUCommand queries the first NVIDIA device. Output is one CSV line per GPU
// without header or units; memory values are MiB on every platform.
const GPUCommand = "nvidia-smi --query-gpu=name,utilization.gpu,memory.used,memory.total,temperature.gpu --format=csv,noheader,nounits"

const (
	windowsCPUCommand = "wmic cpu get loadpercentage /value"
	windowsRAMCommand = "wmic OS get FreePhysicalMemory,TotalVisibleMemorySize /value"
	linuxCPUCommand   = `top -bn1 | grep "Cpu(s)" | awk '{print $2 + $4}'`
	linuxRAMCommand   = `grep -E 'MemTotal|MemFree' /proc/meminfo`
)

// Commands is the set of shell commands for one platform family.
type Commands struct {
	Family Family
	GPU    string
	CPU    string
	RAM    string
}

// Resolve returns the commands for the given platform identifier (a GOOS
// value such as "linux" or "windows").
func Resolve(goos string) (Commands, error) {
	switch strings.ToLower(strings.TrimSpace(goos)) {
	case "windows":
		return Commands{
			Family: FamilyWindows,
			GPU:    GPUCommand,
			CPU:    windowsCPUCommand,
			RAM:    windowsRAMCommand,
		}, nil
	case "linux":
		return Commands{
			Family: FamilyLinux,
			GPU:    GPUCommand,
			CPU:    linuxCPUCommand,
			RAM:    linuxRAMCommand,
		}, nil
	default:
		return Commands{}, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, goos)
	}
}
