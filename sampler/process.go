package sampler

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

var _ Probe = (*processProbe)(nil)

// processProbe reads an OS process through gopsutil
type processProbe struct {
	proc *process.Process
}

// NewProcessProbe attaches a Probe to the process with the given pid
func NewProcessProbe(ctx context.Context, pid int) (Probe, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to attach to process %d: %w", pid, err)
	}
	return &processProbe{proc: proc}, nil
}

func (p *processProbe) IsRunning(ctx context.Context) (bool, error) {
	return p.proc.IsRunningWithContext(ctx)
}

func (p *processProbe) MemoryRSS(ctx context.Context) (uint64, error) {
	info, err := p.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

// CPUPercent returns usage since the previous call; the first call returns 0.
func (p *processProbe) CPUPercent(ctx context.Context) (float64, error) {
	return p.proc.PercentWithContext(ctx, 0)
}
