package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/convtest/sampler"
	"github.com/ethereum-optimism/infra/convtest/types"
)

var _ ProcessRunner = (*processRunner)(nil)

// processWaitDelay bounds how long Wait keeps draining output pipes after the
// process was killed or exited while a child still holds them open.
const processWaitDelay = 5 * time.Second

// ExecResult is everything ProcessRunner observed while running one test case.
// Err is set when the subprocess could not be spawned, monitored or finished
// in time; a non-zero exit code alone is not an execution error.
type ExecResult struct {
	Stdout   string         // Tail of the output, for logs
	Stderr   string         // Tail of the error output, for logs
	Markers  *OutputMarkers // Found in the complete output, nil to scan Stdout instead
	Samples  []types.ResourceSample
	Stats    types.PeakStats
	Duration time.Duration
	ExitCode int
	TimedOut bool
	Err      error
}

// ProcessRunner spawns and monitors the subprocess of a single test case.
// Run never returns an error: failures are reported through ExecResult.Err
// so the caller can keep going with the next case.
type ProcessRunner interface {
	Run(ctx context.Context, tc types.TestCase) *ExecResult
}

// ProbeFactory attaches a resource probe to a spawned process
type ProbeFactory func(ctx context.Context, pid int) (sampler.Probe, error)

// ExecutorConfig configures a ProcessRunner
type ExecutorConfig struct {
	RunContext     RunContext
	Timeout        time.Duration // Per-case timeout, 0 disables it
	SampleInterval time.Duration
	StdoutTail     int // Bytes of stdout kept per case, 0 for the default
	Log            log.Logger

	// Optional overrides, mostly for tests
	ProbeFactory ProbeFactory
	CmdBuilder   func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// processRunner implements ProcessRunner
type processRunner struct {
	runContext   RunContext
	timeout      time.Duration
	sampler      *sampler.Sampler
	probeFactory ProbeFactory
	cmdBuilder   func(ctx context.Context, name string, arg ...string) *exec.Cmd
	stdoutTail   int
	log          log.Logger
}

// NewProcessRunner creates a ProcessRunner
func NewProcessRunner(cfg ExecutorConfig) (ProcessRunner, error) {
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.ProbeFactory == nil {
		cfg.ProbeFactory = sampler.NewProcessProbe
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = exec.CommandContext
	}

	return &processRunner{
		runContext:   cfg.RunContext,
		timeout:      cfg.Timeout,
		sampler:      sampler.New(cfg.SampleInterval, cfg.Log),
		probeFactory: cfg.ProbeFactory,
		cmdBuilder:   cfg.CmdBuilder,
		stdoutTail:   cfg.StdoutTail,
		log:          cfg.Log,
	}, nil
}

// Run spawns the test script for tc, samples it until it exits and reaps it.
func (e *processRunner) Run(ctx context.Context, tc types.TestCase) (res *ExecResult) {
	res = &ExecResult{ExitCode: -1}
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("Panic while running test case", "test", tc.Name, "error", rec)
			res.Err = fmt.Errorf("runtime error: %v", rec)
		}
		res.Duration = time.Since(start)
	}()

	args := e.runContext.BuildArgs(tc)

	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if e.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	cmd := e.cmdBuilder(runCtx, e.runContext.interpreter(), args...)
	cmd.Dir = e.runContext.WorkDir
	cmd.WaitDelay = processWaitDelay

	stdout := newTailBuffer(e.stdoutTail)
	stderr := newTailBuffer(e.stdoutTail)
	markers := newMarkerScanner()
	cmd.Stdout = io.MultiWriter(stdout, markers)
	cmd.Stderr = stderr

	e.log.Info("Running test case", "test", tc.Name, "ordinal", tc.Ordinal, "cmd", cmd.Path)
	if err := cmd.Start(); err != nil {
		res.Err = fmt.Errorf("failed to start test process: %w", err)
		return res
	}
	pid := cmd.Process.Pid
	e.log.Debug("Spawned test process", "test", tc.Name, "pid", pid)

	// Wait reaps the process exactly once; the sampler stops as soon as it has.
	exited := make(chan struct{})
	var waitErr error
	var g errgroup.Group
	g.Go(func() error {
		defer close(exited)
		waitErr = cmd.Wait()
		return nil
	})
	g.Go(func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("resource monitoring failed: %v", rec)
			}
		}()
		probe, err := e.probeFactory(runCtx, pid)
		if err != nil {
			e.log.Debug("Process not measurable, skipping resource sampling", "test", tc.Name, "pid", pid, "err", err)
			return nil
		}
		res.Samples, res.Stats = e.sampler.Sample(runCtx, probe, exited)
		return nil
	})
	monitorErr := g.Wait()

	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	found := markers.Markers()
	res.Markers = &found
	if stdout.Truncated() {
		e.log.Debug("Test output truncated", "test", tc.Name, "totalBytes", stdout.TotalBytes())
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case ctx.Err() != nil:
		res.Err = fmt.Errorf("test interrupted: %w", ctx.Err())
	case runCtx.Err() != nil:
		res.TimedOut = true
		res.Err = fmt.Errorf("test timed out after %v", e.timeout)
	case monitorErr != nil:
		res.Err = monitorErr
	case waitErr != nil:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			res.Err = fmt.Errorf("failed waiting for test process: %w", waitErr)
		}
	}

	e.log.Debug("Test process finished", "test", tc.Name, "exitCode", res.ExitCode,
		"samples", res.Stats.Samples, "peakMemoryGiB", res.Stats.PeakMemoryGiB(), "peakCPU", res.Stats.PeakCPUPercent)
	return res
}
