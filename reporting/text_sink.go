package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum-optimism/infra/convtest/types"
)

// SummaryFilename is the name of the plain text summary in the report directory
const SummaryFilename = "summary.log"

// TextSummarySink writes a plain text summary of the run
type TextSummarySink struct {
	baseDir string
	mode    string

	mu      sync.Mutex
	results []*types.CaseResult
}

// NewTextSummarySink creates a new text summary sink writing into baseDir
func NewTextSummarySink(baseDir, mode string) *TextSummarySink {
	return &TextSummarySink{
		baseDir: baseDir,
		mode:    mode,
	}
}

// Consume collects test results for later text summary generation
func (s *TextSummarySink) Consume(result *types.CaseResult, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// Complete generates the text summary file
func (s *TextSummarySink) Complete(summary *types.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", s.baseDir, err)
	}

	summaryFile := filepath.Join(s.baseDir, SummaryFilename)
	if err := os.WriteFile(summaryFile, []byte(s.format(summary)), 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

func (s *TextSummarySink) format(summary *types.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "RUN ID: %s\n", summary.RunID)
	if s.mode != "" {
		fmt.Fprintf(&b, "MODE: %s\n", s.mode)
	}
	fmt.Fprintf(&b, "STARTED: %s\n", summary.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "DURATION: %s\n", formatSeconds(summary.Duration)+"s")
	fmt.Fprintf(&b, "STATUS: %s\n\n", types.GetResultString(summary.Status()))

	fmt.Fprintf(&b, "Total test cases: %d\n", summary.Total)
	fmt.Fprintf(&b, "Executed: %d\n", summary.Executed)
	fmt.Fprintf(&b, "Passed: %d\n", summary.Passed())
	fmt.Fprintf(&b, "Failed: %d\n", summary.Failed)
	fmt.Fprintf(&b, "Skipped: %d\n", summary.Skipped)
	fmt.Fprintf(&b, "Execution errors: %d\n", summary.Errored)

	var failed []*types.CaseResult
	for _, r := range s.results {
		if r.Outcome.Status == types.TestStatusFail {
			failed = append(failed, r)
		}
	}
	if len(failed) > 0 {
		b.WriteString("\nFAILED TEST CASES:\n")
		for _, r := range failed {
			fmt.Fprintf(&b, "  %d. %s: %s", r.Case.Ordinal, r.Case.Name, r.Outcome.Category.Message())
			if line := types.FirstLine(r.Outcome.Detail, 120); line != "" {
				fmt.Fprintf(&b, " (%s)", line)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
