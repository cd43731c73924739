package metric

import (
	"fmt"
	"time"
)

// Status summarizes the outcome of a refresh cycle.
type Status uint8

const (
	// StatusPending is reported before the first cycle completes.
	StatusPending Status = iota
	StatusOK
	// StatusPartialError means a GPU was found but one of its readings, CPU
	// or RAM failed.
	StatusPartialError
	// StatusError means the GPU query produced no device data.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusOK:
		return "ok"
	case StatusPartialError:
		return "partial_error"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for _, candidate := range []Status{StatusPending, StatusOK, StatusPartialError, StatusError} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", string(text))
}

// GPU holds the fields owned by the GPU metric group.
type GPU struct {
	DeviceName         Field[string]  `json:"device_name"`
	UtilizationPercent Field[float64] `json:"utilization_pct"`
	MemoryUsedMiB      Field[float64] `json:"memory_used_mib"`
	MemoryTotalMiB     Field[float64] `json:"memory_total_mib"`
	TemperatureCelsius Field[float64] `json:"temperature_c"`
}

// OK reports whether the group holds device data.
func (g GPU) OK() bool { return g.DeviceName.OK() }

// Degraded reports whether a device was found but one of its readings
// failed. Readings the device does not report are not counted.
func (g GPU) Degraded() bool {
	if !g.OK() {
		return false
	}
	for _, state := range []State{
		g.UtilizationPercent.State(),
		g.MemoryUsedMiB.State(),
		g.MemoryTotalMiB.State(),
		g.TemperatureCelsius.State(),
	} {
		if state == StateFailed {
			return true
		}
	}
	return false
}

// FailedGPU returns a GPU group with every field marked as failed.
func FailedGPU() GPU {
	return GPU{
		DeviceName:         Failed[string](),
		UtilizationPercent: Failed[float64](),
		MemoryUsedMiB:      Failed[float64](),
		MemoryTotalMiB:     Failed[float64](),
		TemperatureCelsius: Failed[float64](),
	}
}

// CPU holds the fields owned by the CPU metric group.
type CPU struct {
	UtilizationPercent Field[float64] `json:"utilization_pct"`
}

// OK reports whether the group was measured.
func (c CPU) OK() bool { return c.UtilizationPercent.OK() }

// FailedCPU returns a CPU group marked as failed.
func FailedCPU() CPU {
	return CPU{UtilizationPercent: Failed[float64]()}
}

// RAM holds the fields owned by the RAM metric group.
type RAM struct {
	UsedGiB  Field[float64] `json:"used_gib"`
	TotalGiB Field[float64] `json:"total_gib"`
}

// OK reports whether the group was measured.
func (r RAM) OK() bool { return r.UsedGiB.OK() && r.TotalGiB.OK() }

// FailedRAM returns a RAM group with every field marked as failed.
func FailedRAM() RAM {
	return RAM{UsedGiB: Failed[float64](), TotalGiB: Failed[float64]()}
}

// Snapshot is one complete, immutable set of metric values produced by a
// single refresh cycle.
type Snapshot struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	Platform  string    `json:"platform"`
	Status    Status    `json:"status"`
	GPU       GPU       `json:"gpu"`
	CPU       CPU       `json:"cpu"`
	RAM       RAM       `json:"ram"`
}

// DeriveStatus computes the snapshot status from its metric groups.
func DeriveStatus(gpu GPU, cpu CPU, ram RAM) Status {
	switch {
	case !gpu.OK():
		return StatusError
	case gpu.Degraded() || !cpu.OK() || !ram.OK():
		return StatusPartialError
	default:
		return StatusOK
	}
}
