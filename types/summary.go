package types

import (
	"fmt"
	"time"
)

// RunSummary is the aggregate of a whole batch run. It is owned by the
// orchestrator while the run is in progress and finalized exactly once.
type RunSummary struct {
	RunID     string
	Total     int // Number of test cases in the configuration
	Executed  int // Passed and failed cases
	Skipped   int
	Failed    int
	Errored   int // Failed cases that could not be run or monitored
	StartTime time.Time
	Duration  time.Duration
	Cases     []*CaseResult // In configuration order
}

// NewRunSummary creates an empty summary for total test cases
func NewRunSummary(runID string, total int, start time.Time) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		Total:     total,
		StartTime: start,
		Cases:     make([]*CaseResult, 0, total),
	}
}

// Record folds one classified case into the counters and appends it to Cases.
func (s *RunSummary) Record(result *CaseResult) {
	switch result.Outcome.Status {
	case TestStatusSkip:
		s.Skipped++
	case TestStatusPass:
		s.Executed++
	default:
		s.Executed++
		s.Failed++
		if result.Outcome.IsExecutionError() {
			s.Errored++
		}
	}
	s.Cases = append(s.Cases, result)
}

// Finalize stamps the overall elapsed time
func (s *RunSummary) Finalize(end time.Time) {
	s.Duration = end.Sub(s.StartTime)
}

// Passed returns the number of passed cases
func (s *RunSummary) Passed() int {
	return s.Executed - s.Failed
}

// Status derives the overall run status
func (s *RunSummary) Status() TestStatus {
	if s.Failed > 0 {
		return TestStatusFail
	}
	if s.Total > 0 && s.Skipped == s.Total {
		return TestStatusSkip
	}
	return TestStatusPass
}

func (s *RunSummary) String() string {
	return fmt.Sprintf("=== RESULT: %d failed of %d (total: %d, skipped: %d, errored: %d, duration: %.2fs)",
		s.Failed, s.Executed, s.Total, s.Skipped, s.Errored, s.Duration.Seconds())
}
