// Package sampler polls a running process for resident memory and CPU usage
// and aggregates the readings into per-test-case peak statistics.
//
// Sampling is a plain fixed-interval polling loop, not an event driven
// monitor: a process that lives for less than one interval yields no samples.
package sampler

import (
	"context"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/convtest/types"
)

// DefaultInterval is the time between two samples
const DefaultInterval = time.Second

// Probe reads resource usage of a single process
type Probe interface {
	IsRunning(ctx context.Context) (bool, error)
	MemoryRSS(ctx context.Context) (uint64, error)
	CPUPercent(ctx context.Context) (float64, error)
}

// Sampler repeatedly reads a Probe until the process is gone
type Sampler struct {
	interval time.Duration
	log      log.Logger
}

// New creates a Sampler. A non-positive interval falls back to DefaultInterval.
func New(interval time.Duration, logger log.Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Sampler{
		interval: interval,
		log:      logger,
	}
}

// Interval returns the polling interval
func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// Sample polls probe every interval until exited is closed, the probe reports
// the process as not running, ctx is done, or a memory reading of exactly
// zero is seen. The zero reading is kept as the last sample.
//
// The zero-memory stop is a heuristic: an exited but not yet reaped process
// reports zero RSS on Linux, but a transient zero reading of a live process
// stops sampling early as well.
//
// Read errors are swallowed: the affected sample is omitted.
func (s *Sampler) Sample(ctx context.Context, probe Probe, exited <-chan struct{}) ([]types.ResourceSample, types.PeakStats) {
	var samples []types.ResourceSample

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return samples, Aggregate(samples)
		case <-exited:
			return samples, Aggregate(samples)
		case <-ticker.C:
		}

		running, err := probe.IsRunning(ctx)
		if err != nil {
			s.log.Debug("Process liveness check failed", "err", err)
			return samples, Aggregate(samples)
		}
		if !running {
			return samples, Aggregate(samples)
		}

		mem, err := probe.MemoryRSS(ctx)
		if err != nil {
			s.log.Debug("Skipping sample, memory read failed", "err", err)
			continue
		}
		cpu, err := probe.CPUPercent(ctx)
		if err != nil {
			s.log.Debug("Skipping sample, cpu read failed", "err", err)
			continue
		}

		samples = append(samples, types.ResourceSample{MemoryBytes: mem, CPUPercent: cpu})
		if mem == 0 {
			s.log.Debug("Zero memory reading, treating process as exited", "samples", len(samples))
			return samples, Aggregate(samples)
		}
	}
}

// EstimateCores estimates how many cores a raw CPU percentage spans:
// ceil(pct/100), never less than one.
func EstimateCores(pct float64) int {
	cores := int(math.Ceil(pct / 100))
	if cores < 1 {
		return 1
	}
	return cores
}

// Aggregate derives PeakStats from a sample sequence. The average is the mean
// of each sample's CPU percentage divided by its estimated core count.
func Aggregate(samples []types.ResourceSample) types.PeakStats {
	stats := types.PeakStats{Samples: len(samples)}
	if len(samples) == 0 {
		return stats
	}

	var sum float64
	for _, sample := range samples {
		if sample.MemoryBytes > stats.PeakMemoryBytes {
			stats.PeakMemoryBytes = sample.MemoryBytes
		}
		if sample.CPUPercent > stats.PeakCPUPercent {
			stats.PeakCPUPercent = sample.CPUPercent
		}
		sum += sample.CPUPercent / float64(EstimateCores(sample.CPUPercent))
	}
	stats.AvgCPUPerCore = sum / float64(len(samples))
	return stats
}
