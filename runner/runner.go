package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/convtest/metrics"
	"github.com/ethereum-optimism/infra/convtest/registry"
	"github.com/ethereum-optimism/infra/convtest/types"
)

var errRunInterrupted = errors.New("run interrupted before the test case started")

// TestRunner defines the interface for running a batch of test cases
type TestRunner interface {
	RunAllTests(ctx context.Context) (*types.RunSummary, error)
	RunTest(ctx context.Context, tc types.TestCase) *types.CaseResult
}

// CaseLogger receives every classified case as soon as it is known
type CaseLogger interface {
	LogCaseResult(result *types.CaseResult, runID string) error
	GetRunID() string
}

// runner implements TestRunner
type runner struct {
	registry   *registry.Registry
	executor   ProcessRunner
	log        log.Logger
	caseLogger CaseLogger
	runID      string
	tracer     trace.Tracer
}

// Config holds configuration for creating a new runner
type Config struct {
	Registry   *registry.Registry
	Executor   ProcessRunner
	Log        log.Logger
	CaseLogger CaseLogger // Optional
}

// NewTestRunner creates a new test runner instance
func NewTestRunner(cfg Config) (TestRunner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if len(cfg.Registry.TestCases()) == 0 {
		cfg.Log.Warn("No test cases configured, the report will be empty")
	}

	return &runner{
		registry:   cfg.Registry,
		executor:   cfg.Executor,
		log:        cfg.Log,
		caseLogger: cfg.CaseLogger,
		tracer:     otel.Tracer("test runner"),
	}, nil
}

// RunAllTests runs every configured test case in configuration order. Case
// failures are recorded in the summary; they never abort the run.
func (r *runner) RunAllTests(ctx context.Context) (*types.RunSummary, error) {
	if r.caseLogger != nil {
		r.runID = r.caseLogger.GetRunID()
	} else {
		r.runID = uuid.New().String()
	}
	defer func() {
		r.runID = ""
	}()

	cases := r.registry.TestCases()
	summary := types.NewRunSummary(r.runID, len(cases), time.Now())
	r.log.Debug("Running all test cases", "run_id", r.runID, "total", len(cases))

	for _, tc := range cases {
		var result *types.CaseResult
		if ctx.Err() != nil {
			result = interruptedResult(tc)
		} else {
			result = r.RunTest(ctx, tc)
		}
		summary.Record(result)
		r.publish(result)

		r.log.Info("Test case completed",
			"test", tc.Name,
			"result", result.Outcome.Status,
			"category", result.Outcome.Category,
			"completed", len(summary.Cases),
			"total", summary.Total)
	}
	summary.Finalize(time.Now())

	if len(summary.Cases) != summary.Total {
		return nil, fmt.Errorf("recorded %d outcomes for %d test cases", len(summary.Cases), summary.Total)
	}
	return summary, nil
}

// RunTest runs and classifies a single test case
func (r *runner) RunTest(ctx context.Context, tc types.TestCase) (result *types.CaseResult) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("test case %s", tc.Name))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			errMsg := fmt.Sprintf("runtime error: %v", rec)
			r.log.Error("Panic in RunTest", "error", errMsg, "test", tc.Name)
			result = &types.CaseResult{
				Case: tc,
				Outcome: types.Outcome{
					Status:   types.TestStatusFail,
					Category: types.CategoryExecution,
					Detail:   errMsg,
				},
				ExitCode: -1,
			}
		}
		span.SetAttributes(
			attribute.String("status", string(result.Outcome.Status)),
			attribute.String("category", string(result.Outcome.Category)),
		)
		if result.Outcome.Status == types.TestStatusFail {
			span.SetStatus(codes.Error, result.Outcome.Category.Message())
		}
	}()

	r.log.Info("MODEL", "test", tc.Name, "ordinal", tc.Ordinal)
	exec := r.executor.Run(ctx, tc)
	outcome := Classify(exec)

	result = &types.CaseResult{
		Case:     tc,
		Outcome:  outcome,
		Stats:    exec.Stats,
		ExitCode: exec.ExitCode,
		Stdout:   exec.Stdout,
		Stderr:   exec.Stderr,
		TimedOut: exec.TimedOut,
	}

	r.log.Info("Resource usage", "test", tc.Name,
		"peakMemoryGiB", fmt.Sprintf("%.3f", exec.Stats.PeakMemoryGiB()),
		"peakCPU", exec.Stats.PeakCPUPercent,
		"avgCPUPerCore", fmt.Sprintf("%.2f", exec.Stats.AvgCPUPerCore),
		"samples", exec.Stats.Samples)
	if outcome.Status == types.TestStatusFail {
		r.log.Warn("Test case failed", "test", tc.Name, "category", outcome.Category,
			"error", types.FirstLine(outcome.Detail, 200))
	}
	return result
}

// publish fans the result out to metrics and the case logger
func (r *runner) publish(result *types.CaseResult) {
	metrics.RecordCase(r.runID, result.Case.Name, result.Outcome.Status, result.Outcome.Category,
		result.Stats, result.Outcome.Duration)

	if r.caseLogger == nil {
		return
	}
	if err := r.caseLogger.LogCaseResult(result, r.runID); err != nil {
		r.log.Error("Error logging test case result", "test", result.Case.Name, "error", err)
		metrics.RecordErrorDetails("log_case_result", err)
	}
}

func interruptedResult(tc types.TestCase) *types.CaseResult {
	return &types.CaseResult{
		Case: tc,
		Outcome: types.Outcome{
			Status:   types.TestStatusFail,
			Category: types.CategoryExecution,
			Detail:   errRunInterrupted.Error(),
		},
		ExitCode: -1,
	}
}
