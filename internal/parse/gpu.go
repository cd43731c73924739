package parse

import (
	"errors"
	"strings"

	"github.com/skobkin/nvmon-web/internal/metric"
)

const gpuFieldCount = 5

// GPU parses nvidia-smi CSV output (name, utilization.gpu, memory.used,
// memory.total, temperature.gpu). Only the first device line is used.
//
// A line with a device name always yields device data. Values the driver
// does not report ("[N/A]", "[Not Supported]") stay unmeasured; values that
// cannot be interpreted are marked failed and reported in the error.
func GPU(output string) (metric.GPU, error) {
	rows := lines(output)
	if len(rows) == 0 {
		return metric.FailedGPU(), &Error{Group: GroupGPU, Err: ErrNoDevice}
	}

	fields := strings.Split(rows[0], ",")
	if len(fields) < gpuFieldCount {
		return metric.FailedGPU(), malformed(GroupGPU, "expected %d fields, got %d", gpuFieldCount, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	name := fields[0]
	if name == "" {
		return metric.FailedGPU(), malformed(GroupGPU, "empty device name")
	}

	var errs []error
	gpuField := func(index int, label string) metric.Field[float64] {
		raw := fields[index]
		if notReported(raw) {
			return metric.Field[float64]{}
		}
		value, err := parseNumber(raw)
		if err != nil {
			errs = append(errs, malformed(GroupGPU, "%s: %v", label, err))
			return metric.Failed[float64]()
		}
		return metric.Measured(value)
	}

	gpu := metric.GPU{
		DeviceName:         metric.Measured(name),
		UtilizationPercent: gpuField(1, "utilization"),
		MemoryUsedMiB:      gpuField(2, "memory.used"),
		MemoryTotalMiB:     gpuField(3, "memory.total"),
		TemperatureCelsius: gpuField(4, "temperature"),
	}

	if util, ok := gpu.UtilizationPercent.Get(); ok && !validPercent(util) {
		gpu.UtilizationPercent = metric.Failed[float64]()
		errs = append(errs, malformed(GroupGPU, "utilization %.2f out of range", util))
	}
	used, usedOK := gpu.MemoryUsedMiB.Get()
	total, totalOK := gpu.MemoryTotalMiB.Get()
	if usedOK && totalOK && (used < 0 || total < 0 || used > total) {
		gpu.MemoryUsedMiB = metric.Failed[float64]()
		gpu.MemoryTotalMiB = metric.Failed[float64]()
		errs = append(errs, malformed(GroupGPU, "memory used %.0f / total %.0f", used, total))
	}

	return gpu, errors.Join(errs...)
}

// notReported matches nvidia-smi placeholders such as "[N/A]" and
// "[Not Supported]".
func notReported(raw string) bool {
	return strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]")
}
