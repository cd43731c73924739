// Package view turns snapshots into the display tree shared by the terminal
// client and the HTTP API.
package view

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/skobkin/nvmon-web/internal/metric"
)

// Kind tags a tree node. Consumers dispatch on Kind, never on Label.
type Kind int

const (
	KindDevice Kind = iota
	KindHost
	KindGPUUtilization
	KindGPUMemory
	KindGPUTemperature
	KindCPUUtilization
	KindRAM
)

var kindNames = map[Kind]string{
	KindDevice:         "device",
	KindHost:           "host",
	KindGPUUtilization: "gpu_utilization",
	KindGPUMemory:      "gpu_memory",
	KindGPUTemperature: "gpu_temperature",
	KindCPUUtilization: "cpu_utilization",
	KindRAM:            "ram",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown node kind %d", int(k))
	}
	return []byte(name), nil
}

// Group reports whether nodes of this kind hold children.
func (k Kind) Group() bool {
	return k == KindDevice || k == KindHost
}

const (
	// NotAvailable is shown for values that were never measured.
	NotAvailable = "N/A"
	// ErrorText is shown for values whose measurement failed.
	ErrorText = "Error"

	hostLabel = "CPU"
)

// Node is one entry of the display tree. Group nodes carry children and no
// value; leaf nodes carry a formatted value.
type Node struct {
	Kind     Kind         `json:"kind"`
	Label    string       `json:"label"`
	Value    string       `json:"value,omitempty"`
	State    metric.State `json:"state"`
	Children []Node       `json:"children,omitempty"`
}

// Text renders the node as a single line, e.g. "GPU: 37 %".
func (n Node) Text() string {
	if n.Kind.Group() {
		return n.Label
	}
	return n.Label + ": " + n.Value
}

// Build returns the two top-level nodes: the GPU device and the host CPU.
func Build(snap metric.Snapshot) []Node {
	gpu := snap.GPU
	memState := combine(gpu.MemoryUsedMiB.State(), gpu.MemoryTotalMiB.State())
	ramState := combine(snap.RAM.UsedGiB.State(), snap.RAM.TotalGiB.State())

	device := Node{
		Kind:  KindDevice,
		Label: DeviceName(gpu.DeviceName),
		State: gpu.DeviceName.State(),
		Children: []Node{
			{
				Kind:  KindGPUUtilization,
				Label: "GPU",
				Value: Percent(gpu.UtilizationPercent),
				State: gpu.UtilizationPercent.State(),
			},
			{
				Kind:  KindGPUMemory,
				Label: "Memory",
				Value: GPUMemory(gpu.MemoryUsedMiB, gpu.MemoryTotalMiB),
				State: memState,
			},
			{
				Kind:  KindGPUTemperature,
				Label: "Temp",
				Value: Temperature(gpu.TemperatureCelsius),
				State: gpu.TemperatureCelsius.State(),
			},
		},
	}

	host := Node{
		Kind:  KindHost,
		Label: hostLabel,
		State: combine(snap.CPU.UtilizationPercent.State(), ramState),
		Children: []Node{
			{
				Kind:  KindCPUUtilization,
				Label: "CPU",
				Value: Percent(snap.CPU.UtilizationPercent),
				State: snap.CPU.UtilizationPercent.State(),
			},
			{
				Kind:  KindRAM,
				Label: "RAM",
				Value: RAM(snap.RAM.UsedGiB, snap.RAM.TotalGiB),
				State: ramState,
			},
		},
	}

	return []Node{device, host}
}

// WriteText writes the tree as indented plain text.
func WriteText(w io.Writer, nodes []Node) error {
	var b strings.Builder
	writeNodes(&b, nodes, 0)
	_, err := io.WriteString(w, b.String())
	return err
}

func writeNodes(b *strings.Builder, nodes []Node, depth int) {
	for _, node := range nodes {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(node.Text())
		b.WriteByte('\n')
		writeNodes(b, node.Children, depth+1)
	}
}

// DeviceName formats the GPU name.
func DeviceName(f metric.Field[string]) string {
	if text, ok := sentinel(f.State()); ok {
		return text
	}
	return f.Value()
}

// Percent formats a utilization value, e.g. "37 %".
func Percent(f metric.Field[float64]) string {
	if text, ok := sentinel(f.State()); ok {
		return text
	}
	return number(f.Value()) + " %"
}

// Temperature formats a temperature, e.g. "61°C".
func Temperature(f metric.Field[float64]) string {
	if text, ok := sentinel(f.State()); ok {
		return text
	}
	return number(f.Value()) + "°C"
}

// GPUMemory formats MiB values as GiB, e.g. "2.00/24.00GiB".
func GPUMemory(used, total metric.Field[float64]) string {
	if text, ok := sentinel(combine(used.State(), total.State())); ok {
		return text
	}
	return fmt.Sprintf("%.2f/%.2fGiB", used.Value()/1024, total.Value()/1024)
}

// RAM formats GiB values, e.g. "11.72/15.63GiB".
func RAM(used, total metric.Field[float64]) string {
	if text, ok := sentinel(combine(used.State(), total.State())); ok {
		return text
	}
	return fmt.Sprintf("%.2f/%.2fGiB", used.Value(), total.Value())
}

func sentinel(state metric.State) (string, bool) {
	switch state {
	case metric.StateOK:
		return "", false
	case metric.StateFailed:
		return ErrorText, true
	default:
		return NotAvailable, true
	}
}

// combine reports Failed if any state failed, Unmeasured if any was not
// measured, and OK otherwise.
func combine(states ...metric.State) metric.State {
	result := metric.StateOK
	for _, s := range states {
		switch s {
		case metric.StateFailed:
			return metric.StateFailed
		case metric.StateUnmeasured:
			result = metric.StateUnmeasured
		}
	}
	return result
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
