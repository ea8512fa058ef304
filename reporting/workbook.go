package reporting

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/ethereum-optimism/infra/convtest/types"
)

const (
	// WorkbookFilenamePrefix prefixes the consolidated results workbook of a run
	WorkbookFilenamePrefix = "Consolidated_Results_"

	// WorkbookSheet is the sheet the test script and the harness share
	WorkbookSheet = "Results"

	// WorkbookTitle is written to the first row when the workbook is created
	WorkbookTitle = "Consolidated Results"
)

var workbookHeader = []string{
	"No", "Model", "Status", "Category", "Duration (s)",
	"Peak Memory (GiB)", "Peak CPU (%)", "Average CPU per Core (%)", "Samples", "Error",
}

// WorkbookFilename returns the workbook file name for a run timestamp
func WorkbookFilename(timestamp string) string {
	return WorkbookFilenamePrefix + timestamp + ".xlsx"
}

// WorkbookSink appends the per-case and aggregate results of the harness to
// the consolidated workbook. The workbook is created up front because the
// test script adds its own rows to it while the run is in progress.
type WorkbookSink struct {
	path string

	mu   sync.Mutex
	rows [][]any
}

// NewWorkbookSink creates the workbook at path unless one already exists,
// which is the case when a run reuses the timestamp of an earlier one.
func NewWorkbookSink(path string) (*WorkbookSink, error) {
	if err := initializeWorkbook(path); err != nil {
		return nil, err
	}
	return &WorkbookSink{path: path}, nil
}

func initializeWorkbook(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat workbook: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create workbook directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), WorkbookSheet); err != nil {
		return fmt.Errorf("failed to name workbook sheet: %w", err)
	}
	if err := f.SetCellStr(WorkbookSheet, "A1", WorkbookTitle); err != nil {
		return fmt.Errorf("failed to write workbook title: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to create workbook: %w", err)
	}
	return nil
}

// Path returns the workbook file path
func (s *WorkbookSink) Path() string {
	return s.path
}

func (s *WorkbookSink) Consume(result *types.CaseResult, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = append(s.rows, []any{
		result.Case.Ordinal,
		result.Case.Name,
		string(result.Outcome.Status),
		string(result.Outcome.Category),
		round(result.Outcome.Duration.Seconds(), 2),
		round(result.Stats.PeakMemoryGiB(), 3),
		round(result.Stats.PeakCPUPercent, 1),
		round(result.Stats.AvgCPUPerCore, 2),
		result.Stats.Samples,
		types.FirstLine(result.Outcome.Detail, 200),
	})
	return nil
}

// Complete reopens the workbook, keeping whatever the script wrote, and
// appends the results block and a totals block below the last used row.
func (s *WorkbookSink) Complete(summary *types.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := initializeWorkbook(s.path); err != nil {
		return err
	}
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := WorkbookSheet
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	existing, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("failed to read workbook: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create workbook style: %w", err)
	}

	// One blank row separates the block from the rows above it.
	row := len(existing) + 2
	headerRow := row
	if err := setRow(f, sheet, row, toCells(workbookHeader)); err != nil {
		return err
	}
	for _, cells := range s.rows {
		row++
		if err := setRow(f, sheet, row, cells); err != nil {
			return err
		}
	}

	row += 2
	totalsStart := row
	totals := [][]any{
		{"Total", summary.Total},
		{"Executed", summary.Executed},
		{"Passed", summary.Passed()},
		{"Failed", summary.Failed},
		{"Skipped", summary.Skipped},
		{"Duration (s)", round(summary.Duration.Seconds(), 2)},
	}
	for i, cells := range totals {
		if err := setRow(f, sheet, totalsStart+i, cells); err != nil {
			return err
		}
	}

	if err := f.SetRowStyle(sheet, headerRow, headerRow, bold); err != nil {
		return fmt.Errorf("failed to format workbook: %w", err)
	}
	if err := f.SetCellStyle(sheet, cellName(1, totalsStart), cellName(1, totalsStart+len(totals)-1), bold); err != nil {
		return fmt.Errorf("failed to format workbook: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", "A", 14); err != nil {
		return fmt.Errorf("failed to format workbook: %w", err)
	}
	if err := f.SetColWidth(sheet, "B", "B", 32); err != nil {
		return fmt.Errorf("failed to format workbook: %w", err)
	}
	if err := f.SetColWidth(sheet, "C", "I", 16); err != nil {
		return fmt.Errorf("failed to format workbook: %w", err)
	}
	if err := f.SetColWidth(sheet, "J", "J", 60); err != nil {
		return fmt.Errorf("failed to format workbook: %w", err)
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []any) error {
	if err := f.SetSheetRow(sheet, cellName(1, row), &cells); err != nil {
		return fmt.Errorf("failed to write workbook row %d: %w", row, err)
	}
	return nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func toCells(values []string) []any {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
