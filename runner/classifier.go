package runner

import (
	"fmt"
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/convtest/types"
)

// Classify turns the result of one subprocess run into an Outcome. It never
// fails: a missing or unknown status token degrades to an execution error.
// Classify is pure, so classifying the same result twice yields the same Outcome.
func Classify(res *ExecResult) types.Outcome {
	if res == nil {
		return types.Outcome{
			Status:   types.TestStatusFail,
			Category: types.CategoryExecution,
			Detail:   "no execution result",
		}
	}

	outcome := types.Outcome{Duration: res.Duration}
	if res.Err != nil {
		outcome.Status = types.TestStatusFail
		outcome.Category = types.CategoryExecution
		outcome.Detail = executionDetail(res.Err.Error(), res.Stderr)
		return outcome
	}

	markers := res.Markers
	if markers == nil {
		scanned := ScanOutput(res.Stdout)
		markers = &scanned
	}

	token, found := markers.Token, markers.TokenFound
	outcome.Token = token
	switch {
	case found && token == StatusTokenPass:
		outcome.Status = types.TestStatusPass
	case found && token == StatusTokenSkip:
		outcome.Status = types.TestStatusSkip
	case found && token == StatusTokenFail:
		outcome.Status = types.TestStatusFail
		outcome.Category = categorize(markers)
		outcome.Detail = markers.Detail
	default:
		outcome.Status = types.TestStatusFail
		outcome.Category = types.CategoryExecution
		var msg string
		if found {
			msg = fmt.Sprintf("unrecognized status token %q (exit code %d)", token, res.ExitCode)
		} else {
			msg = fmt.Sprintf("no %q marker in test output (exit code %d)", strings.TrimSpace(StatusMarker), res.ExitCode)
		}
		outcome.Detail = executionDetail(msg, res.Stderr)
	}
	return outcome
}

// ExtractStatusToken returns the token following the last status marker,
// up to the end of that line.
func ExtractStatusToken(output string) (string, bool) {
	markers := ScanOutput(output)
	return markers.Token, markers.TokenFound
}

// CategorizeFailure picks a failure category from keywords in the output.
// Accuracy takes precedence over performance.
func CategorizeFailure(output string) types.FailureCategory {
	markers := ScanOutput(output)
	return categorize(&markers)
}

// ExtractFailureDetail returns the text between the last fail marker and the
// next status marker, or the rest of the output if no status marker follows.
// Empty when there is no fail marker.
func ExtractFailureDetail(output string) string {
	return ScanOutput(output).Detail
}

func categorize(markers *OutputMarkers) types.FailureCategory {
	switch {
	case markers.Accuracy:
		return types.CategoryAccuracy
	case markers.Performance:
		return types.CategoryPerformance
	default:
		return types.CategoryParsing
	}
}

func executionDetail(msg, stderr string) string {
	stderr = strings.TrimSpace(stripansi.Strip(stderr))
	if stderr == "" {
		return msg
	}
	return fmt.Sprintf("%s\nstderr: %s", msg, stderr)
}
