package parse

import (
	"strings"

	"github.com/skobkin/nvmon-web/internal/metric"
	"github.com/skobkin/nvmon-web/internal/platform"
)

const windowsLoadKey = "loadpercentage"

// CPU parses the CPU load command output for the given platform family.
func CPU(family platform.Family, output string) (metric.CPU, error) {
	var (
		value float64
		err   *Error
	)
	switch family {
	case platform.FamilyWindows:
		value, err = windowsCPU(output)
	case platform.FamilyLinux:
		value, err = linuxCPU(output)
	default:
		err = malformed(GroupCPU, "unknown platform family %q", family)
	}
	if err != nil {
		return metric.FailedCPU(), err
	}
	if !validPercent(value) {
		return metric.FailedCPU(), malformed(GroupCPU, "load %.2f out of range", value)
	}
	return metric.CPU{UtilizationPercent: metric.Measured(value)}, nil
}

// windowsCPU reads LoadPercentage=<n> lines. Multi-socket hosts print one
// line per processor; the loads are averaged.
func windowsCPU(output string) (float64, *Error) {
	var (
		sum   float64
		count int
	)
	for _, line := range lines(output) {
		key, value, ok := strings.Cut(line, "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), windowsLoadKey) {
			continue
		}
		load, err := parseNumber(value)
		if err != nil {
			return 0, malformed(GroupCPU, "%v", err)
		}
		sum += load
		count++
	}
	if count == 0 {
		return 0, malformed(GroupCPU, "LoadPercentage not found")
	}
	return sum / float64(count), nil
}

// linuxCPU reads the bare percentage printed by the top/awk pipeline. awk
// honours LC_NUMERIC, so a comma decimal separator is accepted.
func linuxCPU(output string) (float64, *Error) {
	rows := lines(output)
	if len(rows) == 0 {
		return 0, malformed(GroupCPU, "empty output")
	}
	load, err := parseNumber(strings.Replace(rows[0], ",", ".", 1))
	if err != nil {
		return 0, malformed(GroupCPU, "%v", err)
	}
	return load, nil
}
