package runner

// Subprocess contract constants
const (
	// DefaultInterpreter runs the test script
	DefaultInterpreter = "python3"

	// DefaultScript is the per-model test script invoked for every case
	DefaultScript = "run_test.py"

	// StatusMarker precedes the status token on the subprocess stdout
	StatusMarker = "RETURN STATUS: "

	// FailErrorMarker precedes the failure detail block
	FailErrorMarker = "FAIL ERROR: "

	// Status tokens emitted after StatusMarker
	StatusTokenPass = "0"
	StatusTokenSkip = "1"
	StatusTokenFail = "2"

	// Output substrings used to categorize failures
	AccuracyKeyword    = "Accuracy"
	PerformanceKeyword = "Performance"

	// Bytes of stdout kept in memory per test case for the logs
	defaultStdoutTailBytes = 5 * 1024 * 1024
)
