package convtest

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/convtest/flags"
	"github.com/ethereum-optimism/infra/convtest/runner"
	"github.com/ethereum-optimism/infra/convtest/service"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

// TimestampFormat names report directories and the results sheet
const TimestampFormat = "02-01-2006_15:04"

// Config holds the application configuration
type Config struct {
	ConfigFile     string   // Test configuration file
	Tests          []string // Optional subset of tests to run
	List           bool     // Print the configured test names and exit
	Interpreter    string
	Script         string
	WorkDir        string
	ModelDir       string
	DataDir        string
	LogDir         string // Parent of the report directory
	ReportPath     string // JUnit report file
	SuiteName      string
	ReportPrefix   string
	Backends       []string
	Options        runner.Options // Option bundle forwarded to the script, Mode included
	Timestamp      string
	Timeout        time.Duration // Per-case timeout, 0 disables it
	SampleInterval time.Duration
	Service        service.Config
	Log            log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	configFile := ctx.String(flags.ConfigFile.Name)
	if configFile == "" {
		return nil, errors.New("test configuration file is required")
	}
	absConfigFile, err := filepath.Abs(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for config '%s': %w", configFile, err)
	}

	mode, err := ResolveMode(ctx.String(flags.Mode.Name), ctx.String(flags.ModeFile.Name))
	if err != nil {
		return nil, err
	}

	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}
	reportPath, err := filepath.Abs(ctx.String(flags.Report.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for report '%s': %w", ctx.String(flags.Report.Name), err)
	}

	timeout := ctx.Duration(flags.Timeout.Name)
	if timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative: %v", timeout)
	}

	timestamp := ctx.String(flags.Time.Name)
	if timestamp == "" {
		timestamp = time.Now().Format(TimestampFormat)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)

	return &Config{
		ConfigFile:   absConfigFile,
		Tests:        splitTests(ctx.StringSlice(flags.Tests.Name)),
		List:         ctx.Bool(flags.List.Name),
		Interpreter:  ctx.String(flags.Interpreter.Name),
		Script:       ctx.String(flags.Script.Name),
		WorkDir:      ctx.String(flags.WorkDir.Name),
		ModelDir:     ctx.String(flags.ModelDir.Name),
		DataDir:      ctx.String(flags.DataDir.Name),
		LogDir:       logDir,
		ReportPath:   reportPath,
		SuiteName:    ctx.String(flags.SuiteName.Name),
		ReportPrefix: ctx.String(flags.ReportPrefix.Name),
		Backends:     ctx.StringSlice(flags.Backend.Name),
		Options: runner.Options{
			Debug:           ctx.Bool(flags.Debug.Name),
			OnnxFile:        ctx.String(flags.OnnxFile.Name),
			Opset:           ctx.Int(flags.Opset.Name),
			Perf:            ctx.String(flags.Perf.Name),
			FoldConst:       ctx.Bool(flags.FoldConst.Name),
			Override:        ctx.String(flags.Override.Name),
			IncludeDisabled: ctx.Bool(flags.IncludeDisabled.Name),
			Mode:            mode,
		},
		Timestamp:      timestamp,
		Timeout:        timeout,
		SampleInterval: ctx.Duration(flags.SampleInterval.Name),
		Service: service.Config{
			HealthzEnabled: ctx.Bool(flags.HealthzEnabled.Name),
			HealthzAddr:    ctx.String(flags.HealthzAddr.Name),
			MetricsEnabled: metricsCfg.Enabled,
			MetricsHost:    metricsCfg.ListenAddr,
			MetricsPort:    metricsCfg.ListenPort,
		},
		Log: log,
	}, nil
}

// ReportDir returns the report directory of this run:
// <log dir>/<prefix>_<mode>_report_<timestamp>
func (c *Config) ReportDir() string {
	name := fmt.Sprintf("%s_%s_report_%s", c.ReportPrefix, c.Options.Mode, c.Timestamp)
	return filepath.Join(c.LogDir, name)
}

// RunContext returns the run-wide context passed to every test script invocation
func (c *Config) RunContext(workbookPath string) runner.RunContext {
	return runner.RunContext{
		Interpreter:  c.Interpreter,
		Script:       c.Script,
		WorkDir:      c.WorkDir,
		ModelDir:     c.ModelDir,
		DataDir:      c.DataDir,
		WorkbookPath: workbookPath,
		ReportPath:   c.ReportPath,
		Options:      c.Options,
		LogDir:       c.LogDir,
		Timestamp:    c.Timestamp,
		Backends:     c.Backends,
	}
}

// ResolveMode returns the explicit mode if set, otherwise the mode carried by
// the first line of modeFile (auto="true" or auto="false"). A missing mode
// file means manual mode.
func ResolveMode(mode, modeFile string) (string, error) {
	if mode != "" {
		if err := flags.ValidateMode(mode); err != nil {
			return "", err
		}
		return mode, nil
	}
	if modeFile == "" {
		return flags.ModeManual, nil
	}

	f, err := os.Open(modeFile)
	if errors.Is(err, os.ErrNotExist) {
		return flags.ModeManual, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to open mode file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read mode file: %w", err)
		}
		return flags.ModeManual, nil
	}
	return parseModeLine(scanner.Text()), nil
}

// parseModeLine reads the value after the last "auto=" with quotes removed
func parseModeLine(line string) string {
	parts := strings.Split(line, "auto=")
	value := strings.ReplaceAll(parts[len(parts)-1], `"`, "")
	if strings.Contains(value, "true") {
		return flags.ModeAutomatic
	}
	return flags.ModeManual
}

func splitTests(values []string) []string {
	var tests []string
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				tests = append(tests, name)
			}
		}
	}
	return tests
}
