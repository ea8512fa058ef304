package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/convtest/types"
)

func TestBuildArgs(t *testing.T) {
	rc := RunContext{
		Script:       "run_test.py",
		ModelDir:     "/models",
		DataDir:      "/data",
		WorkbookPath: "/logs/r/Consolidated_Results_t.xlsx",
		ReportPath:   "/out/test_result.xml",
		Options: Options{
			Debug:     true,
			Opset:     7,
			FoldConst: true,
			Override:  "x:0=1",
			Mode:      "manual",
		},
		LogDir:    "/logs",
		Timestamp: "01-03-2024_10:00",
		Backends:  []string{"habana", "cpu"},
	}
	tc := types.TestCase{Name: "modelA", Payload: "{'model': 'a.pb'}", Ordinal: 3}

	args := rc.BuildArgs(tc)
	assert.Equal(t, []string{
		"run_test.py",
		"/models",
		"/data",
		"modelA",
		"{'model': 'a.pb'}",
		"/logs/r/Consolidated_Results_t.xlsx",
		"/out/test_result.xml",
		"[3, True, None, 7, None, True, 'x:0=1', False, 'manual']",
		"/logs",
		"01-03-2024_10:00",
		"['habana', 'cpu']",
	}, args)
}

func TestBuildArgsDefaults(t *testing.T) {
	rc := RunContext{}
	args := rc.BuildArgs(types.TestCase{Name: "m", Payload: "None", Ordinal: 1})
	require.Len(t, args, 11)
	assert.Equal(t, DefaultScript, args[0])
	assert.Equal(t, "[1, False, None, 0, None, False, None, False, '']", args[7])
	assert.Equal(t, "[]", args[10])
	assert.Equal(t, DefaultInterpreter, rc.interpreter())
}

func TestBuildArgsOptionBundle(t *testing.T) {
	rc := RunContext{
		Options:  Options{Opset: 7, Mode: "manual"},
		Backends: []string{"habana"},
	}
	args := rc.BuildArgs(types.TestCase{Name: "m", Payload: "None", Ordinal: 1})
	assert.Equal(t, "[1, False, None, 7, None, False, None, False, 'manual']", args[7])
	assert.Equal(t, "['habana']", args[10])

	rc.Options = Options{OnnxFile: "/tmp/onnx", Perf: "perf.csv", IncludeDisabled: true, Mode: "automatic"}
	args = rc.BuildArgs(types.TestCase{Name: "m", Ordinal: 12})
	assert.Equal(t, "[12, False, '/tmp/onnx', 0, 'perf.csv', False, None, True, 'automatic']", args[7])
}
