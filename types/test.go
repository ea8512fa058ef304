package types

import (
	"fmt"
	"strings"
	"time"
)

// TestStatus represents the possible states of a classified test case
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
	TestStatusSkip TestStatus = "skip"
)

// FailureCategory describes why a failed test case failed
type FailureCategory string

const (
	CategoryNone        FailureCategory = ""
	CategoryAccuracy    FailureCategory = "accuracy failure"
	CategoryPerformance FailureCategory = "performance failure"
	CategoryParsing     FailureCategory = "parsing/config failure"
	CategoryExecution   FailureCategory = "execution error"
)

// Message returns the human readable failure message reported for the category.
func (c FailureCategory) Message() string {
	switch c {
	case CategoryAccuracy:
		return "Accuracy Measurement failed"
	case CategoryPerformance:
		return "Performance Measurement failed"
	case CategoryParsing:
		return "Model parsing failed. Check input and output names"
	case CategoryExecution:
		return "Test execution failed"
	default:
		return ""
	}
}

// TestCase is one named unit of work executed by the external program.
type TestCase struct {
	Name    string
	Params  any    // Decoded parameter value as found in the configuration
	Payload string // Params encoded once at load time, forwarded verbatim to the subprocess
	Ordinal int    // 1-based position in the run
}

// Outcome is the classified result of one test case
type Outcome struct {
	Status   TestStatus
	Category FailureCategory // Only set when Status is TestStatusFail
	Detail   string          // Failure detail text extracted from the output
	Token    string          // Raw status token found after the marker, if any
	Duration time.Duration
}

// IsExecutionError reports whether the outcome stems from a failure to run or monitor the subprocess.
func (o Outcome) IsExecutionError() bool {
	return o.Status == TestStatusFail && o.Category == CategoryExecution
}

// CaseResult couples a test case with everything observed while running it
type CaseResult struct {
	Case     TestCase
	Outcome  Outcome
	Stats    PeakStats
	ExitCode int
	Stdout   string // Tail of the subprocess stdout
	Stderr   string
	TimedOut bool
}

// GetResultString returns a short marker for a test status
func GetResultString(status TestStatus) string {
	switch status {
	case TestStatusPass:
		return "✓ pass"
	case TestStatusSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}

// FirstLine returns the first line of s, cut to maxLen runes when maxLen > 0.
func FirstLine(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[:idx]
	}
	if maxLen > 0 {
		runes := []rune(s)
		if len(runes) > maxLen {
			return fmt.Sprintf("%s...", string(runes[:maxLen]))
		}
	}
	return s
}
