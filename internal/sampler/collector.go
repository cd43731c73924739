package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skobkin/nvmon-web/internal/metric"
	"github.com/skobkin/nvmon-web/internal/parse"
	"github.com/skobkin/nvmon-web/internal/platform"
	"github.com/skobkin/nvmon-web/internal/runner"
)

// DefaultCommandTimeout bounds a single measurement command.
const DefaultCommandTimeout = 5 * time.Second

const maxLoggedStderr = 512

// Collector runs the three measurement commands and merges their parsed
// results into a snapshot.
type Collector struct {
	cmds    platform.Commands
	runner  runner.Runner
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewCollector builds a Collector for the resolved command set.
func NewCollector(cmds platform.Commands, r runner.Runner, timeout time.Duration, logger *slog.Logger) (*Collector, error) {
	if r == nil {
		return nil, fmt.Errorf("runner must not be nil")
	}
	if cmds.GPU == "" || cmds.CPU == "" || cmds.RAM == "" {
		return nil, fmt.Errorf("incomplete command set for family %q", cmds.Family)
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		cmds:    cmds,
		runner:  r,
		timeout: timeout,
		logger:  logger.With("component", "sampler_collector"),
		now:     time.Now,
	}, nil
}

// Family returns the platform family the collector measures.
func (c *Collector) Family() platform.Family {
	return c.cmds.Family
}

// Collect runs one measurement pass. It always returns a snapshot; failed
// groups are marked with failed sentinels. Sequence is left for the caller.
func (c *Collector) Collect(ctx context.Context) metric.Snapshot {
	var (
		wg                     sync.WaitGroup
		gpuRes, cpuRes, ramRes runner.Result
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		gpuRes = c.run(ctx, c.cmds.GPU)
	}()
	go func() {
		defer wg.Done()
		cpuRes = c.run(ctx, c.cmds.CPU)
	}()
	go func() {
		defer wg.Done()
		ramRes = c.run(ctx, c.cmds.RAM)
	}()
	wg.Wait()

	gpu := metric.FailedGPU()
	if c.ok(parse.GroupGPU, c.cmds.GPU, gpuRes) {
		parsed, err := parse.GPU(gpuRes.Stdout)
		c.logParse(parse.GroupGPU, c.cmds.GPU, err)
		gpu = parsed
	}

	cpu := metric.FailedCPU()
	if c.ok(parse.GroupCPU, c.cmds.CPU, cpuRes) {
		parsed, err := parse.CPU(c.cmds.Family, cpuRes.Stdout)
		c.logParse(parse.GroupCPU, c.cmds.CPU, err)
		cpu = parsed
	}

	ram := metric.FailedRAM()
	if c.ok(parse.GroupRAM, c.cmds.RAM, ramRes) {
		parsed, err := parse.RAM(c.cmds.Family, ramRes.Stdout)
		c.logParse(parse.GroupRAM, c.cmds.RAM, err)
		ram = parsed
	}

	return metric.Snapshot{
		Timestamp: c.now().UTC(),
		Platform:  string(c.cmds.Family),
		Status:    metric.DeriveStatus(gpu, cpu, ram),
		GPU:       gpu,
		CPU:       cpu,
		RAM:       ram,
	}
}

// run executes command under the per-command timeout. The result is
// abandoned when the timeout fires, even if the runner keeps going.
func (c *Collector) run(ctx context.Context, command string) runner.Result {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan runner.Result, 1)
	go func() {
		done <- c.runner.Run(runCtx, command)
	}()

	select {
	case res := <-done:
		return res
	case <-runCtx.Done():
		return runner.Result{Err: fmt.Errorf("%w after %s: %q", runner.ErrTimeout, c.timeout, command)}
	}
}

func (c *Collector) ok(group parse.Group, command string, res runner.Result) bool {
	if res.Err == nil {
		return true
	}
	c.logger.Warn("measurement command failed",
		"group", group,
		"command", command,
		"stderr", truncate(strings.TrimSpace(res.Stderr), maxLoggedStderr),
		"err", res.Err,
	)
	return false
}

func (c *Collector) logParse(group parse.Group, command string, err error) {
	if err == nil {
		return
	}
	c.logger.Warn("failed to parse measurement output", "group", group, "command", command, "err", err)
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
