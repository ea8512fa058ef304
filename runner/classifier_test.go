package runner

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/convtest/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		res      *ExecResult
		status   types.TestStatus
		category types.FailureCategory
		detail   string
		token    string
	}{
		{
			name:   "pass",
			res:    &ExecResult{Stdout: "loading\nRETURN STATUS: 0\n"},
			status: types.TestStatusPass,
			token:  "0",
		},
		{
			name:   "skip",
			res:    &ExecResult{Stdout: "RETURN STATUS: 1"},
			status: types.TestStatusSkip,
			token:  "1",
		},
		{
			name:     "parsing failure",
			res:      &ExecResult{Stdout: "FAIL ERROR: bad shape\nRETURN STATUS: 2"},
			status:   types.TestStatusFail,
			category: types.CategoryParsing,
			detail:   "bad shape",
			token:    "2",
		},
		{
			name:     "accuracy failure",
			res:      &ExecResult{Stdout: "Accuracy mismatch\nFAIL ERROR: off by 0.1\nRETURN STATUS: 2\n"},
			status:   types.TestStatusFail,
			category: types.CategoryAccuracy,
			detail:   "off by 0.1",
			token:    "2",
		},
		{
			name:     "performance failure",
			res:      &ExecResult{Stdout: "Performance too low\nRETURN STATUS: 2"},
			status:   types.TestStatusFail,
			category: types.CategoryPerformance,
			token:    "2",
		},
		{
			name:     "accuracy wins over performance",
			res:      &ExecResult{Stdout: "Performance ok\nAccuracy bad\nRETURN STATUS: 2"},
			status:   types.TestStatusFail,
			category: types.CategoryAccuracy,
			token:    "2",
		},
		{
			name:   "last marker wins",
			res:    &ExecResult{Stdout: "RETURN STATUS: 2\nretrying\nRETURN STATUS: 0\n"},
			status: types.TestStatusPass,
			token:  "0",
		},
		{
			name:   "token is trimmed",
			res:    &ExecResult{Stdout: "RETURN STATUS: 0 \r\n"},
			status: types.TestStatusPass,
			token:  "0",
		},
		{
			name:     "missing marker",
			res:      &ExecResult{Stdout: "crashed", ExitCode: 139},
			status:   types.TestStatusFail,
			category: types.CategoryExecution,
			detail:   `no "RETURN STATUS:" marker in test output (exit code 139)`,
		},
		{
			name:     "unknown token",
			res:      &ExecResult{Stdout: "RETURN STATUS: 7", Stderr: "warning\n"},
			status:   types.TestStatusFail,
			category: types.CategoryExecution,
			detail:   "unrecognized status token \"7\" (exit code 0)\nstderr: warning",
			token:    "7",
		},
		{
			name:     "execution error",
			res:      &ExecResult{Err: errors.New("failed to start test process: not found")},
			status:   types.TestStatusFail,
			category: types.CategoryExecution,
			detail:   "failed to start test process: not found",
		},
		{
			name:     "execution error ignores markers",
			res:      &ExecResult{Stdout: "RETURN STATUS: 0", Err: errors.New("test timed out after 1s")},
			status:   types.TestStatusFail,
			category: types.CategoryExecution,
			detail:   "test timed out after 1s",
		},
		{
			name:     "nil result",
			res:      nil,
			status:   types.TestStatusFail,
			category: types.CategoryExecution,
			detail:   "no execution result",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := Classify(tt.res)
			assert.Equal(t, tt.status, outcome.Status)
			assert.Equal(t, tt.category, outcome.Category)
			assert.Equal(t, tt.detail, outcome.Detail)
			assert.Equal(t, tt.token, outcome.Token)
		})
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	res := &ExecResult{
		Stdout:   "Accuracy\nFAIL ERROR: x\nRETURN STATUS: 2",
		Duration: 3 * time.Second,
	}
	first := Classify(res)
	second := Classify(res)
	assert.Equal(t, first, second)
	assert.Equal(t, 3*time.Second, first.Duration)
}

func TestExtractFailureDetail(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{"no marker", "RETURN STATUS: 2", ""},
		{"to end of output", "FAIL ERROR: line one\nline two\n", "line one\nline two"},
		{"up to status marker", "FAIL ERROR: boom\nRETURN STATUS: 2\ntrailing", "boom"},
		{"last fail marker", "FAIL ERROR: first\nFAIL ERROR: second\nRETURN STATUS: 2", "second"},
		{"strips ansi", "FAIL ERROR: \x1b[31mred\x1b[0m\nRETURN STATUS: 2", "red"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFailureDetail(tt.output))
		})
	}
}

func TestExtractStatusToken(t *testing.T) {
	token, ok := ExtractStatusToken("no marker")
	assert.False(t, ok)
	assert.Empty(t, token)

	token, ok = ExtractStatusToken("RETURN STATUS: ")
	assert.True(t, ok)
	assert.Empty(t, token)

	token, ok = ExtractStatusToken("a\nRETURN STATUS: 2\nb")
	assert.True(t, ok)
	assert.Equal(t, "2", token)
}
