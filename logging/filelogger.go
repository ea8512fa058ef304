package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/convtest/types"
)

const (
	AllLogsFilename = "all.log"
	PassedDirName   = "passed"
	FailedDirName   = "failed"
	SkippedDirName  = "skipped"
)

// ResultSink is an interface for different ways of consuming test case results
type ResultSink interface {
	// Consume processes a single classified test case
	Consume(result *types.CaseResult, runID string) error
	// Complete is called once with the finalized summary
	Complete(summary *types.RunSummary) error
}

// FileLogger writes per-case output into the report directory and fans
// results out to its sinks
type FileLogger struct {
	baseDir      string                // Report directory of this run
	allLogsFile  string                // Path to the combined log file
	mu           sync.Mutex            // Protects concurrent file operations
	sinks        []ResultSink          // Collection of result consumers
	asyncWriters map[string]*AsyncFile // Map of async file writers
	runID        string                // Current run ID
}

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(filepath string) (*AsyncFile, error) {
	file, err := os.Create(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", filepath, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100),
	}

	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file is closed")
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	af.queue <- dataCopy
	return nil
}

// processQueue processes the write queue in the background
func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	af.wg.Wait()
	return af.file.Close()
}

// NewFileLogger creates the report directory layout for runID under baseDir
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	dirs := []string{
		baseDir,
		filepath.Join(baseDir, PassedDirName),
		filepath.Join(baseDir, FailedDirName),
		filepath.Join(baseDir, SkippedDirName),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	logger := &FileLogger{
		baseDir:      baseDir,
		allLogsFile:  filepath.Join(baseDir, AllLogsFilename),
		sinks:        make([]ResultSink, 0),
		asyncWriters: make(map[string]*AsyncFile),
		runID:        runID,
	}

	logger.sinks = append(logger.sinks,
		&AllLogsFileSink{logger: logger},
		&PerCaseFileSink{logger: logger},
		&JSONResultsSink{logger: logger},
	)

	return logger, nil
}

// AddSink registers an additional result sink
func (l *FileLogger) AddSink(sink ResultSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, sink)
}

// getAsyncWriter gets or creates an AsyncFile for the given path
func (l *FileLogger) getAsyncWriter(path string) (*AsyncFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if writer, exists := l.asyncWriters[path]; exists {
		return writer, nil
	}

	writer, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}

	l.asyncWriters[path] = writer
	return writer, nil
}

// closeAllWriters closes all async writers
func (l *FileLogger) closeAllWriters() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for path, writer := range l.asyncWriters {
		if err := writer.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing file %s: %v\n", path, err)
		}
	}
	l.asyncWriters = make(map[string]*AsyncFile)
}

// LogCaseResult hands a classified case to every sink. All sinks see the
// result even when one fails; the first error is returned.
func (l *FileLogger) LogCaseResult(result *types.CaseResult, runID string) error {
	var firstErr error
	for _, sink := range l.snapshotSinks() {
		if err := sink.Consume(result, runID); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to consume result of %s: %w", result.Case.Name, err)
		}
	}
	return firstErr
}

// Complete finalizes every sink with the run summary and closes open files.
// A sink failure here is a report assembly failure.
func (l *FileLogger) Complete(summary *types.RunSummary) error {
	defer l.closeAllWriters()

	for _, sink := range l.snapshotSinks() {
		if err := sink.Complete(summary); err != nil {
			return fmt.Errorf("failed to complete sink %T: %w", sink, err)
		}
	}
	return nil
}

func (l *FileLogger) snapshotSinks() []ResultSink {
	l.mu.Lock()
	defer l.mu.Unlock()
	sinks := make([]ResultSink, len(l.sinks))
	copy(sinks, l.sinks)
	return sinks
}

// GetBaseDir returns the report directory
func (l *FileLogger) GetBaseDir() string {
	return l.baseDir
}

// GetAllLogsFile returns the path of the combined log file
func (l *FileLogger) GetAllLogsFile() string {
	return l.allLogsFile
}

// GetRunID returns the run ID of this logger
func (l *FileLogger) GetRunID() string {
	return l.runID
}

// CaseLogPath returns the per-case log file path for a result
func (l *FileLogger) CaseLogPath(result *types.CaseResult) string {
	dir := FailedDirName
	switch result.Outcome.Status {
	case types.TestStatusPass:
		dir = PassedDirName
	case types.TestStatusSkip:
		dir = SkippedDirName
	}
	filename := fmt.Sprintf("%03d_%s.log", result.Case.Ordinal, safeFilename(result.Case.Name))
	return filepath.Join(l.baseDir, dir, filename)
}

// safeFilename replaces characters that are not safe in file names
func safeFilename(s string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(s)
}

// AllLogsFileSink appends a short record of every case to all.log
type AllLogsFileSink struct {
	logger *FileLogger
}

func (s *AllLogsFileSink) Consume(result *types.CaseResult, runID string) error {
	writer, err := s.logger.getAsyncWriter(s.logger.allLogsFile)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n=== MODEL: %s (%d) ===\n", result.Case.Name, result.Case.Ordinal)
	fmt.Fprintf(&b, "Run ID: %s\n", runID)
	fmt.Fprintf(&b, "Result: %s\n", types.GetResultString(result.Outcome.Status))
	if result.Outcome.Category != types.CategoryNone {
		fmt.Fprintf(&b, "Category: %s\n", result.Outcome.Category)
	}
	fmt.Fprintf(&b, "Duration: %s\n", formatDuration(result.Outcome.Duration))
	fmt.Fprintf(&b, "Peak memory: %.3f GiB, peak CPU: %.1f%%, average per-core CPU: %.2f%%\n",
		result.Stats.PeakMemoryGiB(), result.Stats.PeakCPUPercent, result.Stats.AvgCPUPerCore)
	if result.Outcome.Detail != "" {
		fmt.Fprintf(&b, "FAIL ERROR:\n%s\n", indentText(result.Outcome.Detail, "  "))
	}
	return writer.Write([]byte(b.String()))
}

func (s *AllLogsFileSink) Complete(summary *types.RunSummary) error {
	writer, err := s.logger.getAsyncWriter(s.logger.allLogsFile)
	if err != nil {
		return err
	}
	return writer.Write([]byte("\n" + summary.String() + "\n"))
}

// PerCaseFileSink writes the full output of every case into its own file
type PerCaseFileSink struct {
	logger *FileLogger
}

func (s *PerCaseFileSink) Consume(result *types.CaseResult, runID string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "MODEL: %s\n", result.Case.Name)
	fmt.Fprintf(&b, "PARAMS: %s\n", result.Case.Payload)
	fmt.Fprintf(&b, "RESULT: %s\n", result.Outcome.Status)
	if result.Outcome.Category != types.CategoryNone {
		fmt.Fprintf(&b, "CATEGORY: %s\n", result.Outcome.Category)
	}
	fmt.Fprintf(&b, "DURATION: %s\n", formatDuration(result.Outcome.Duration))
	fmt.Fprintf(&b, "EXIT CODE: %d\n", result.ExitCode)
	if result.TimedOut {
		b.WriteString("TIMED OUT: true\n")
	}
	fmt.Fprintf(&b, "PEAK MEMORY: %.3f GiB\n", result.Stats.PeakMemoryGiB())
	fmt.Fprintf(&b, "PEAK CPU: %.1f%%\n", result.Stats.PeakCPUPercent)
	fmt.Fprintf(&b, "AVERAGE CPU PER CORE: %.2f%%\n", result.Stats.AvgCPUPerCore)
	fmt.Fprintf(&b, "SAMPLES: %d\n", result.Stats.Samples)
	if result.Outcome.Detail != "" {
		fmt.Fprintf(&b, "\nFAIL ERROR:\n%s\n", result.Outcome.Detail)
	}
	fmt.Fprintf(&b, "\nOUTPUT:\n%s\n", stripansi.Strip(strings.TrimRight(result.Stdout, "\n")))
	if result.Stderr != "" {
		fmt.Fprintf(&b, "\nSTDERR:\n%s\n", stripansi.Strip(strings.TrimRight(result.Stderr, "\n")))
	}

	path := s.logger.CaseLogPath(result)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write case log %s: %w", path, err)
	}
	return nil
}

func (s *PerCaseFileSink) Complete(summary *types.RunSummary) error {
	return nil
}

// indentText adds indentation to each line of text
func indentText(text, indent string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = indent + line
		}
	}
	return strings.Join(lines, "\n")
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
