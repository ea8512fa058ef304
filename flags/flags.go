package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "CONVTEST"

// Mode values forwarded to the test script
const (
	ModeAutomatic = "automatic"
	ModeManual    = "manual"
)

var (
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "config/habana.yaml",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG"),
		Usage:   "Path to the test configuration (YAML mapping of test name to parameters, or .toml)",
	}
	Tests = &cli.StringSliceFlag{
		Name:    "tests",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTS"),
		Usage:   "Comma separated subset of test names to run",
	}
	List = &cli.BoolFlag{
		Name:    "list",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LIST"),
		Usage:   "List the configured tests and exit",
	}
	Interpreter = &cli.StringFlag{
		Name:    "interpreter",
		Value:   "python3",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "INTERPRETER"),
		Usage:   "Interpreter used to launch the test script",
	}
	Script = &cli.StringFlag{
		Name:    "script",
		Value:   "run_test.py",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SCRIPT"),
		Usage:   "Test script run once per test case",
	}
	WorkDir = &cli.StringFlag{
		Name:    "workdir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKDIR"),
		Usage:   "Working directory of the test script (defaults to the current directory)",
	}
	ModelDir = &cli.StringFlag{
		Name:    "model-dir",
		Value:   "/mnt/tensorflow/models/",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MODEL_DIR"),
		Usage:   "Directory holding the models under test",
	}
	DataDir = &cli.StringFlag{
		Name:    "data-dir",
		Value:   "/mnt/tensorflow/data/",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DATA_DIR"),
		Usage:   "Directory holding the test datasets",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "/mnt/tensorflow/nightly/",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOG_DIR"),
		Usage:   "Directory in which the run's report directory is created",
	}
	Report = &cli.StringFlag{
		Name:    "report",
		Value:   "./test_result.xml",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORT"),
		Usage:   "Path of the JUnit XML report",
	}
	SuiteName = &cli.StringFlag{
		Name:    "suite-name",
		Value:   "TensorflowONNXtests",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUITE_NAME"),
		Usage:   "Name of the test suite in the JUnit report",
	}
	ReportPrefix = &cli.StringFlag{
		Name:    "report-prefix",
		Value:   "habana_tf",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORT_PREFIX"),
		Usage:   "Prefix of the report directory name",
	}
	Backend = &cli.StringSliceFlag{
		Name:    "backend",
		Value:   cli.NewStringSlice("habana"),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "BACKEND"),
		Usage:   "Backends passed to the test script",
	}
	Opset = &cli.IntFlag{
		Name:    "opset",
		Value:   7,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OPSET"),
		Usage:   "Opset to use",
	}
	Debug = &cli.BoolFlag{
		Name:    "debug",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEBUG"),
		Usage:   "Enable debug output of the test script",
	}
	OnnxFile = &cli.StringFlag{
		Name:    "onnx-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ONNX_FILE"),
		Usage:   "Directory in which the test script writes the converted model",
	}
	Perf = &cli.StringFlag{
		Name:    "perf",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PERF"),
		Usage:   "Capture performance numbers into the given file",
	}
	FoldConst = &cli.BoolFlag{
		Name:    "fold-const",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FOLD_CONST"),
		Usage:   "Enable constant folding before conversion",
	}
	Override = &cli.StringFlag{
		Name:    "override",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OVERRIDE"),
		Usage:   "Names and values of tensors to overwrite",
	}
	IncludeDisabled = &cli.BoolFlag{
		Name:    "include-disabled",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "INCLUDE_DISABLED"),
		Usage:   "Include disabled tests",
	}
	Mode = &cli.StringFlag{
		Name:    "mode",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MODE"),
		Usage:   fmt.Sprintf("Run mode (%s or %s). Read from the mode file when unset", ModeAutomatic, ModeManual),
	}
	ModeFile = &cli.StringFlag{
		Name:    "mode-file",
		Value:   "./test.cfg",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MODE_FILE"),
		Usage:   "File whose first line carries auto=\"true|false\"",
	}
	Time = &cli.StringFlag{
		Name:    "time",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIME"),
		Usage:   "Timestamp of an existing report directory to reuse (format 02-01-2006_15:04)",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Timeout for a single test case (e.g. '30m'). 0 disables it",
	}
	SampleInterval = &cli.DurationFlag{
		Name:    "sample-interval",
		Value:   time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SAMPLE_INTERVAL"),
		Usage:   "Interval between resource usage samples of the running test",
	}
	HealthzEnabled = &cli.BoolFlag{
		Name:    "healthz.enabled",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ENABLED"),
		Usage:   "Serve /healthz and /status while the run is in progress",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0:8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the healthz server",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	ConfigFile,
	Tests,
	List,
	Interpreter,
	Script,
	WorkDir,
	ModelDir,
	DataDir,
	LogDir,
	Report,
	SuiteName,
	ReportPrefix,
	Backend,
	Opset,
	Debug,
	OnnxFile,
	Perf,
	FoldConst,
	Override,
	IncludeDisabled,
	Mode,
	ModeFile,
	Time,
	Timeout,
	SampleInterval,
	HealthzEnabled,
	HealthzAddr,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

// ValidateMode accepts an empty mode or one of the known modes
func ValidateMode(mode string) error {
	switch mode {
	case "", ModeAutomatic, ModeManual:
		return nil
	}
	return fmt.Errorf("mode must be one of: %s, %s", ModeAutomatic, ModeManual)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
