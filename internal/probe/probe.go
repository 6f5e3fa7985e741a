// Package probe samples host resource usage and feeds it into the
// metrics registry, so threshold evaluation exercises live values when
// the pipeline runs as a daemon.
package probe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/coursepulse/telemetry/internal/logging"
)

// Metric names the probe maintains.
const (
	MetricCPUUsage    = "cpuUsage"
	MetricMemoryUsage = "memoryUsage"
)

// DefaultInterval between samples.
const DefaultInterval = 10 * time.Second

// Sink is the registry surface the probe writes into.
type Sink interface {
	UpdateMetric(name string, value float64)
}

// Probe periodically samples CPU and memory usage percentages.
type Probe struct {
	sink     Sink
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger
}

// New creates a runtime probe feeding the given sink.
func New(sink Sink, interval time.Duration) *Probe {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Probe{
		sink:     sink,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		log:      logging.ForServiceSafe("probe"),
	}
}

// Start begins sampling. An initial sample is taken immediately.
func (p *Probe) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.sample()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.sample()
			case <-p.ctx.Done():
				return
			}
		}
	}()
	p.log.Info("runtime probe started", "interval", p.interval)
}

// Stop cancels the sampling loop and waits for it to exit.
func (p *Probe) Stop() {
	p.cancel()
	p.wg.Wait()
}

// sample reads current usage and updates the sink. Read failures are
// logged and skipped; the pipeline continues with stale values.
func (p *Probe) sample() {
	// Zero interval gives an instant reading without blocking the loop.
	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		p.log.Warn("failed to read cpu usage", "error", err)
	} else if len(cpuPercent) > 0 {
		p.sink.UpdateMetric(MetricCPUUsage, cpuPercent[0])
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		p.log.Warn("failed to read memory usage", "error", err)
	} else {
		p.sink.UpdateMetric(MetricMemoryUsage, memInfo.UsedPercent)
	}
}
