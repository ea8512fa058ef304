package logging

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/ethereum-optimism/infra/convtest/types"
)

// ResultsJSONFilename holds one JSON record per classified case
const ResultsJSONFilename = "results.jsonl"

// CaseRecord is the JSON form of one case written to results.jsonl
type CaseRecord struct {
	RunID           string  `json:"runId"`
	Ordinal         int     `json:"ordinal"`
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	Category        string  `json:"category,omitempty"`
	Detail          string  `json:"detail,omitempty"`
	Token           string  `json:"token,omitempty"`
	ExitCode        int     `json:"exitCode"`
	TimedOut        bool    `json:"timedOut,omitempty"`
	DurationSeconds float64 `json:"durationSeconds"`
	PeakMemoryBytes uint64  `json:"peakMemoryBytes"`
	PeakCPUPercent  float64 `json:"peakCpuPercent"`
	AvgCPUPerCore   float64 `json:"avgCpuPerCore"`
	Samples         int     `json:"samples"`
}

// NewCaseRecord flattens a case result into its JSON record
func NewCaseRecord(result *types.CaseResult, runID string) CaseRecord {
	return CaseRecord{
		RunID:           runID,
		Ordinal:         result.Case.Ordinal,
		Name:            result.Case.Name,
		Status:          string(result.Outcome.Status),
		Category:        string(result.Outcome.Category),
		Detail:          result.Outcome.Detail,
		Token:           result.Outcome.Token,
		ExitCode:        result.ExitCode,
		TimedOut:        result.TimedOut,
		DurationSeconds: result.Outcome.Duration.Seconds(),
		PeakMemoryBytes: result.Stats.PeakMemoryBytes,
		PeakCPUPercent:  result.Stats.PeakCPUPercent,
		AvgCPUPerCore:   result.Stats.AvgCPUPerCore,
		Samples:         result.Stats.Samples,
	}
}

// JSONResultsSink appends a JSON line per case so other tools can consume
// the run without parsing the XML report
type JSONResultsSink struct {
	logger *FileLogger
}

func (s *JSONResultsSink) Consume(result *types.CaseResult, runID string) error {
	writer, err := s.logger.getAsyncWriter(filepath.Join(s.logger.baseDir, ResultsJSONFilename))
	if err != nil {
		return err
	}

	line, err := json.Marshal(NewCaseRecord(result, runID))
	if err != nil {
		return fmt.Errorf("failed to encode result of %s: %w", result.Case.Name, err)
	}
	return writer.Write(append(line, '\n'))
}

func (s *JSONResultsSink) Complete(summary *types.RunSummary) error {
	return nil
}
