package convtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/convtest/logging"
	"github.com/ethereum-optimism/infra/convtest/metrics"
	"github.com/ethereum-optimism/infra/convtest/registry"
	"github.com/ethereum-optimism/infra/convtest/reporting"
	"github.com/ethereum-optimism/infra/convtest/runner"
	"github.com/ethereum-optimism/infra/convtest/service"
	"github.com/ethereum-optimism/infra/convtest/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// harness implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &harness{}

// harness runs one batch of conversion tests and writes its reports.
type harness struct {
	ctx        context.Context
	config     *Config
	version    string
	registry   *registry.Registry
	runner     runner.TestRunner
	fileLogger *logging.FileLogger
	service    *service.Service
	summary    *types.RunSummary
	out        io.Writer

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	config.Log.Debug("Creating harness with config",
		"config", config.ConfigFile,
		"tests", config.Tests,
		"mode", config.Options.Mode,
		"timeout", config.Timeout)

	reg, err := registry.NewRegistry(registry.Config{
		Log:        config.Log,
		ConfigFile: config.ConfigFile,
		Tests:      config.Tests,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	h := &harness{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		service:          service.New(config.Service, config.Log),
		out:              os.Stdout,
		shutdownCallback: shutdownCallback,
	}
	if config.List {
		return h, nil
	}

	reportDir := config.ReportDir()
	fileLogger, err := logging.NewFileLogger(reportDir, uuid.New().String())
	if err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	// The script appends to the workbook, so it has to exist before the first case runs.
	workbookPath := filepath.Join(reportDir, reporting.WorkbookFilename(config.Timestamp))
	workbook, err := reporting.NewWorkbookSink(workbookPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize results workbook: %w", err)
	}
	fileLogger.AddSink(reporting.NewJUnitSink(config.ReportPath, config.SuiteName))
	fileLogger.AddSink(workbook)
	fileLogger.AddSink(reporting.NewTextSummarySink(reportDir, config.Options.Mode))

	executor, err := runner.NewProcessRunner(runner.ExecutorConfig{
		RunContext:     config.RunContext(workbookPath),
		Timeout:        config.Timeout,
		SampleInterval: config.SampleInterval,
		Log:            config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create process runner: %w", err)
	}

	testRunner, err := runner.NewTestRunner(runner.Config{
		Registry:   reg,
		Executor:   executor,
		Log:        config.Log,
		CaseLogger: fileLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test runner: %w", err)
	}

	config.Log.Info("Report directory", "dir", reportDir, "workbook", workbookPath, "report", config.ReportPath)
	config.Log.Info("Backends", "backend", config.Backends)

	h.fileLogger = fileLogger
	h.runner = testRunner
	return h, nil
}

// Start runs the configured tests once and signals shutdown when done.
// Start implements the cliapp.Lifecycle interface.
func (h *harness) Start(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.config.Log.Error("Runtime error occurred", "error", r)
			err = NewRuntimeError(fmt.Errorf("panic: %v", r))
		}
	}()

	h.ctx = ctx
	h.running.Store(true)
	h.service.Start(ctx)

	if h.config.List {
		for _, name := range h.registry.Names() {
			fmt.Fprintln(h.out, name)
		}
		go h.shutdownCallback(nil)
		return nil
	}

	h.config.Log.Info("Starting convtest", "version", h.version, "mode", h.config.Options.Mode)
	if err := h.runTests(ctx); err != nil {
		h.config.Log.Error("Runtime error running tests", "error", err)
		// Stop is not called after a failed Start.
		h.running.Store(false)
		h.service.Shutdown()
		return err
	}

	// Failed cases are reported in the JUnit report, not through the exit code.
	h.config.Log.Info("Tests completed, exiting")
	go h.shutdownCallback(nil)
	return nil
}

// runTests runs all tests and writes the reports
func (h *harness) runTests(ctx context.Context) error {
	h.service.RunStarted(h.fileLogger.GetRunID(), len(h.registry.TestCases()))

	summary, err := h.runner.RunAllTests(ctx)
	if err != nil {
		metrics.RecordErrorDetails("run_all_tests", err)
		return NewRuntimeError(err)
	}
	h.summary = summary

	if err := h.fileLogger.Complete(summary); err != nil {
		metrics.RecordErrorDetails("write_reports", err)
		return NewRuntimeError(fmt.Errorf("failed to write reports: %w", err))
	}

	if err := reporting.NewTableReporter("Conversion Test Results").Print(h.out, summary); err != nil {
		h.config.Log.Warn("Failed to print results table", "error", err)
	}
	fmt.Fprintln(h.out, summary.String())

	metrics.RecordRun(summary)
	h.service.RunCompleted(summary)
	h.config.Log.Info("Test run completed",
		"run_id", summary.RunID,
		"status", summary.Status(),
		"failed", summary.Failed,
		"executed", summary.Executed,
		"report", h.config.ReportPath)
	return nil
}

// Summary returns the summary of the completed run, nil before it finished
func (h *harness) Summary() *types.RunSummary {
	return h.summary
}

// Stop stops the harness.
// Stop implements the cliapp.Lifecycle interface.
func (h *harness) Stop(ctx context.Context) error {
	h.config.Log.Info("Stopping convtest")
	if !h.running.Load() {
		h.config.Log.Debug("Harness already stopped, nothing to do")
		return nil
	}
	h.running.Store(false)
	h.service.Shutdown()
	h.config.Log.Info("convtest stopped successfully")
	return nil
}

// Stopped returns true if the harness is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (h *harness) Stopped() bool {
	return !h.running.Load()
}
