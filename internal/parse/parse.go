// Package parse turns raw measurement command output into metric groups.
//
// Parsers are pure functions. On failure they return the group with every
// field marked as failed together with an *Error describing the problem. The
// GPU parser keeps the device data it could read once a device name is
// present and marks only the unreadable fields.
package parse

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrNoDevice is reported when the GPU query printed nothing.
	ErrNoDevice = errors.New("no device")
	// ErrMalformed is reported when output cannot be interpreted.
	ErrMalformed = errors.New("malformed output")
)

// Group names a metric group.
type Group string

const (
	GroupGPU Group = "gpu"
	GroupCPU Group = "cpu"
	GroupRAM Group = "ram"
)

// Error describes a parse failure for one metric group.
type Error struct {
	Group  Group
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("parse %s: %v", e.Group, e.Err)
	}
	return fmt.Sprintf("parse %s: %v: %s", e.Group, e.Err, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func malformed(group Group, format string, args ...any) *Error {
	return &Error{Group: group, Reason: fmt.Sprintf(format, args...), Err: ErrMalformed}
}

// lines returns the trimmed, non-empty lines of output. Windows tools emit
// CRLF and blank padding lines, both of which are dropped.
func lines(output string) []string {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func parseNumber(raw string) (float64, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, fmt.Errorf("empty value")
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse float %q: %w", value, err)
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, fmt.Errorf("non-finite value %q", value)
	}
	return parsed, nil
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func validPercent(value float64) bool {
	return value >= 0 && value <= 100
}
