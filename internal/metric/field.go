// Package metric defines the normalized telemetry snapshot published by the sampler.
package metric

import (
	"encoding/json"
	"fmt"
)

// State tells apart a value that was never measured, one whose measurement
// failed and one that was actually measured (possibly as zero).
type State uint8

const (
	StateUnmeasured State = iota
	StateFailed
	StateOK
)

func (s State) String() string {
	switch s {
	case StateUnmeasured:
		return "unmeasured"
	case StateFailed:
		return "failed"
	case StateOK:
		return "ok"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unmeasured", "":
		*s = StateUnmeasured
	case "failed":
		*s = StateFailed
	case "ok":
		*s = StateOK
	default:
		return fmt.Errorf("unknown field state %q", string(text))
	}
	return nil
}

// Field is a single metric value tagged with its measurement state.
// The zero value is unmeasured.
type Field[T any] struct {
	state State
	value T
}

// Measured returns a field holding v.
func Measured[T any](v T) Field[T] {
	return Field[T]{state: StateOK, value: v}
}

// Failed returns a field marked as failed.
func Failed[T any]() Field[T] {
	return Field[T]{state: StateFailed}
}

// State reports the measurement state.
func (f Field[T]) State() State { return f.state }

// OK reports whether the field holds a measured value.
func (f Field[T]) OK() bool { return f.state == StateOK }

// Get returns the value and whether it was measured.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.state == StateOK
}

// Value returns the measured value, or the zero value of T.
func (f Field[T]) Value() T { return f.value }

type fieldJSON[T any] struct {
	State State `json:"state"`
	Value *T    `json:"value"`
}

// MarshalJSON encodes the field as {"state": ..., "value": ...}; value is null
// unless the state is ok.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	out := fieldJSON[T]{State: f.state}
	if f.state == StateOK {
		v := f.value
		out.Value = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	var in fieldJSON[T]
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*f = Field[T]{state: in.State}
	if in.State == StateOK {
		if in.Value == nil {
			return fmt.Errorf("field state ok without value")
		}
		f.value = *in.Value
	}
	return nil
}
