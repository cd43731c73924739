package httpserver

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skobkin/nvmon-web/internal/metric"
)

const (
	metricsNamespace = "nvmon"
	bytesPerMiB      = 1 << 20
	bytesPerGiB      = 1 << 30
)

var allStatuses = []metric.Status{
	metric.StatusPending,
	metric.StatusOK,
	metric.StatusPartialError,
	metric.StatusError,
}

func (s *Server) registerPrometheus(mux *http.ServeMux) {
	registry := prometheus.NewRegistry()

	wsCounter := func(name, help string, value func() float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      name,
			Help:      help,
		}, value)
	}

	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "active_connections",
			Help:      "Current number of active WebSocket clients.",
		}, func() float64 {
			return float64(s.wsActive.Load())
		}),
		wsCounter("connections_total", "Total WebSocket connections accepted since start.", func() float64 {
			return float64(s.wsTotal.Load())
		}),
		wsCounter("rejected_total", "Total WebSocket connection attempts rejected due to capacity.", func() float64 {
			return float64(s.wsRejected.Load())
		}),
		wsCounter("messages_sent_total", "Total WebSocket messages sent to clients.", func() float64 {
			return float64(s.wsSent.Load())
		}),
		wsCounter("messages_dropped_total", "Total WebSocket messages dropped due to backpressure.", func() float64 {
			return float64(s.wsDropped.Load())
		}),
	}

	if s.telemetry != nil {
		collectors = append(collectors, newSnapshotCollector(s.telemetry))
	}

	for _, collector := range collectors {
		registry.MustRegister(collector)
	}

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

// snapshotCollector exports the latest snapshot and refresh counters. Fields
// that are not measured are omitted rather than reported as zero.
type snapshotCollector struct {
	telemetry Telemetry
	now       func() time.Time

	gpuUtil     *prometheus.Desc
	gpuMemUsed  *prometheus.Desc
	gpuMemTotal *prometheus.Desc
	gpuTemp     *prometheus.Desc
	cpuUtil     *prometheus.Desc
	ramUsed     *prometheus.Desc
	ramTotal    *prometheus.Desc
	status      *prometheus.Desc
	sequence    *prometheus.Desc
	age         *prometheus.Desc
	cycles      *prometheus.Desc
	triggers    *prometheus.Desc
	coalesced   *prometheus.Desc
}

func newSnapshotCollector(telemetry Telemetry) *snapshotCollector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, subsystem, name), help, labels, nil)
	}
	return &snapshotCollector{
		telemetry:   telemetry,
		now:         time.Now,
		gpuUtil:     desc("gpu", "utilization_percent", "GPU utilization percentage.", "device"),
		gpuMemUsed:  desc("gpu", "memory_used_bytes", "GPU memory in use.", "device"),
		gpuMemTotal: desc("gpu", "memory_total_bytes", "Total GPU memory.", "device"),
		gpuTemp:     desc("gpu", "temperature_celsius", "GPU temperature in Celsius.", "device"),
		cpuUtil:     desc("cpu", "utilization_percent", "Host CPU utilization percentage."),
		ramUsed:     desc("ram", "used_bytes", "Host memory in use."),
		ramTotal:    desc("ram", "total_bytes", "Total host memory."),
		status:      desc("snapshot", "status", "Aggregate status of the latest snapshot (1 for the current status).", "status"),
		sequence:    desc("snapshot", "sequence", "Sequence number of the latest snapshot."),
		age:         desc("snapshot", "age_seconds", "Seconds since the latest snapshot was collected."),
		cycles:      desc("refresh", "cycles_total", "Refresh cycles completed."),
		triggers:    desc("refresh", "triggers_total", "Manual refresh requests received."),
		coalesced:   desc("refresh", "coalesced_total", "Manual refresh requests merged into an already queued refresh."),
	}
}

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.gpuUtil, c.gpuMemUsed, c.gpuMemTotal, c.gpuTemp,
		c.cpuUtil, c.ramUsed, c.ramTotal,
		c.status, c.sequence, c.age,
		c.cycles, c.triggers, c.coalesced,
	} {
		ch <- d
	}
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.telemetry.Stats()
	ch <- prometheus.MustNewConstMetric(c.cycles, prometheus.CounterValue, float64(stats.Cycles))
	ch <- prometheus.MustNewConstMetric(c.triggers, prometheus.CounterValue, float64(stats.Triggers))
	ch <- prometheus.MustNewConstMetric(c.coalesced, prometheus.CounterValue, float64(stats.Coalesced))

	snap, _ := c.telemetry.Latest()
	for _, status := range allStatuses {
		value := 0.0
		if snap.Status == status {
			value = 1
		}
		ch <- prometheus.MustNewConstMetric(c.status, prometheus.GaugeValue, value, status.String())
	}
	if snap.Sequence == 0 {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.sequence, prometheus.GaugeValue, float64(snap.Sequence))
	age := c.now().Sub(snap.Timestamp).Seconds()
	ch <- prometheus.MustNewConstMetric(c.age, prometheus.GaugeValue, max(age, 0))

	gauge := func(desc *prometheus.Desc, field metric.Field[float64], scale float64, labels ...string) {
		if value, ok := field.Get(); ok {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, value*scale, labels...)
		}
	}

	if device, ok := snap.GPU.DeviceName.Get(); ok {
		gauge(c.gpuUtil, snap.GPU.UtilizationPercent, 1, device)
		gauge(c.gpuMemUsed, snap.GPU.MemoryUsedMiB, bytesPerMiB, device)
		gauge(c.gpuMemTotal, snap.GPU.MemoryTotalMiB, bytesPerMiB, device)
		gauge(c.gpuTemp, snap.GPU.TemperatureCelsius, 1, device)
	}
	gauge(c.cpuUtil, snap.CPU.UtilizationPercent, 1)
	gauge(c.ramUsed, snap.RAM.UsedGiB, bytesPerGiB)
	gauge(c.ramTotal, snap.RAM.TotalGiB, bytesPerGiB)
}
