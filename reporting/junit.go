package reporting

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum-optimism/infra/convtest/types"
)

// DefaultSuiteName is the name of the single test suite in the report
const DefaultSuiteName = "TensorflowONNXtests"

// JUnitFailureType is the type attribute of every failure element
const JUnitFailureType = "ERROR"

// JUnitTestSuites is the root element of the report
type JUnitTestSuites struct {
	XMLName xml.Name         `xml:"testsuites"`
	Suites  []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite carries the aggregate counters of a run
type JUnitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Time      string          `xml:"time,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Disabled  int             `xml:"disabled,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase is one test case record
type JUnitTestCase struct {
	Name    string        `xml:"name,attr"`
	Time    string        `xml:"time,attr"`
	Failure *JUnitFailure `xml:"failure,omitempty"`
}

// JUnitFailure describes why a test case failed
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Text    string `xml:",chardata"`
}

// BuildJUnit converts a finalized summary into the report document. Errors
// are reported equal to failures.
func BuildJUnit(summary *types.RunSummary, suiteName string) *JUnitTestSuites {
	if suiteName == "" {
		suiteName = DefaultSuiteName
	}

	suite := JUnitTestSuite{
		Name:      suiteName,
		Time:      formatSeconds(summary.Duration),
		Tests:     summary.Total,
		Failures:  summary.Failed,
		Errors:    summary.Failed,
		Disabled:  summary.Skipped,
		TestCases: make([]JUnitTestCase, 0, len(summary.Cases)),
	}

	for _, result := range summary.Cases {
		tc := JUnitTestCase{
			Name: result.Case.Name,
			Time: formatSeconds(result.Outcome.Duration),
		}
		if result.Outcome.Status == types.TestStatusFail {
			tc.Failure = &JUnitFailure{
				Message: result.Outcome.Category.Message(),
				Type:    JUnitFailureType,
				Text:    result.Outcome.Detail,
			}
		}
		suite.TestCases = append(suite.TestCases, tc)
	}

	return &JUnitTestSuites{Suites: []JUnitTestSuite{suite}}
}

// MarshalJUnit renders the report document as indented XML
func MarshalJUnit(report *JUnitTestSuites) ([]byte, error) {
	body, err := xml.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal junit report: %w", err)
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}

// JUnitSink writes the report document when the run completes
type JUnitSink struct {
	path      string
	suiteName string
}

// NewJUnitSink creates a sink writing to path
func NewJUnitSink(path, suiteName string) *JUnitSink {
	return &JUnitSink{path: path, suiteName: suiteName}
}

// Path returns the report file path
func (s *JUnitSink) Path() string {
	return s.path
}

// Consume is a no-op: the report needs the finalized summary
func (s *JUnitSink) Consume(result *types.CaseResult, runID string) error {
	return nil
}

// Complete writes the report file
func (s *JUnitSink) Complete(summary *types.RunSummary) error {
	content, err := MarshalJUnit(BuildJUnit(summary, s.suiteName))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, content, 0644); err != nil {
		return fmt.Errorf("failed to write junit report: %w", err)
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.2f", d.Seconds())
}
