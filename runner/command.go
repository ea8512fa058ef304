package runner

import (
	"github.com/ethereum-optimism/infra/convtest/pyliteral"
	"github.com/ethereum-optimism/infra/convtest/types"
)

// Options is the numeric/flag option bundle forwarded to every test script invocation
type Options struct {
	Debug           bool
	OnnxFile        string
	Opset           int
	Perf            string
	FoldConst       bool
	Override        string
	IncludeDisabled bool
	Mode            string
}

// RunContext is the run-wide context embedded in every subprocess command line
type RunContext struct {
	Interpreter  string
	Script       string
	WorkDir      string // Working directory of the subprocess, empty for the current one
	ModelDir     string
	DataDir      string
	WorkbookPath string // Consolidated results sheet the script may append to
	ReportPath   string // JUnit report path
	Options      Options
	LogDir       string
	Timestamp    string
	Backends     []string
}

// BuildArgs returns the arguments passed to the interpreter for tc. The
// positional layout is a contract with the test script:
//
//	script modelDir dataDir name payload workbook report options logDir timestamp backends
//
// The payload, options and backends are literals the script evaluates.
func (rc RunContext) BuildArgs(tc types.TestCase) []string {
	script := rc.Script
	if script == "" {
		script = DefaultScript
	}

	return []string{
		script,
		rc.ModelDir,
		rc.DataDir,
		tc.Name,
		tc.Payload,
		rc.WorkbookPath,
		rc.ReportPath,
		rc.optionBundle(tc.Ordinal),
		rc.LogDir,
		rc.Timestamp,
		pyliteral.Repr(rc.Backends),
	}
}

// optionBundle renders the options as the list literal
// [ordinal, debug, onnxFile, opset, perf, foldConst, override, includeDisabled, mode]
// with empty strings rendered as None.
func (rc RunContext) optionBundle(ordinal int) string {
	o := rc.Options
	return pyliteral.Repr([]any{
		ordinal,
		o.Debug,
		nullable(o.OnnxFile),
		o.Opset,
		nullable(o.Perf),
		o.FoldConst,
		nullable(o.Override),
		o.IncludeDisabled,
		o.Mode,
	})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (rc RunContext) interpreter() string {
	if rc.Interpreter == "" {
		return DefaultInterpreter
	}
	return rc.Interpreter
}
