package parse

import (
	"strings"

	"github.com/skobkin/nvmon-web/internal/metric"
	"github.com/skobkin/nvmon-web/internal/platform"
)

const kibPerGiB = 1024 * 1024

type memKeys struct {
	free  string
	total string
}

var (
	windowsMemKeys = memKeys{free: "FreePhysicalMemory", total: "TotalVisibleMemorySize"}
	linuxMemKeys   = memKeys{free: "MemFree", total: "MemTotal"}
)

// RAM parses the memory command output for the given platform family. Both
// families report kB values; lines are matched by key, not position.
func RAM(family platform.Family, output string) (metric.RAM, error) {
	var (
		keys memKeys
		sep  string
	)
	switch family {
	case platform.FamilyWindows:
		keys, sep = windowsMemKeys, "="
	case platform.FamilyLinux:
		keys, sep = linuxMemKeys, ":"
	default:
		return metric.FailedRAM(), malformed(GroupRAM, "unknown platform family %q", family)
	}

	values := make(map[string]float64, 2)
	for _, line := range lines(output) {
		key, raw, ok := strings.Cut(line, sep)
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if !strings.EqualFold(key, keys.free) && !strings.EqualFold(key, keys.total) {
			continue
		}
		raw = strings.TrimSpace(raw)
		raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(raw, "kB"), "KB"))
		value, err := parseNumber(raw)
		if err != nil {
			return metric.FailedRAM(), malformed(GroupRAM, "%s: %v", key, err)
		}
		if strings.EqualFold(key, keys.free) {
			values[keys.free] = value
		} else {
			values[keys.total] = value
		}
	}

	total, ok := values[keys.total]
	if !ok {
		return metric.FailedRAM(), malformed(GroupRAM, "%s not found", keys.total)
	}
	free, ok := values[keys.free]
	if !ok {
		return metric.FailedRAM(), malformed(GroupRAM, "%s not found", keys.free)
	}
	if total <= 0 {
		return metric.FailedRAM(), malformed(GroupRAM, "total memory is %.0f", total)
	}
	if free < 0 || free > total {
		return metric.FailedRAM(), malformed(GroupRAM, "free %.0f exceeds total %.0f", free, total)
	}

	return metric.RAM{
		UsedGiB:  metric.Measured(round2((total - free) / kibPerGiB)),
		TotalGiB: metric.Measured(round2(total / kibPerGiB)),
	}, nil
}
