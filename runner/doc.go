// Package runner provides the per-test-case execution loop of convtest.
//
// The main components are:
//   - ProcessRunner: Builds the external command line, spawns the subprocess and samples its resources
//   - Classify: Turns the subprocess output into a structured Outcome using the status markers
//   - TestRunner: Orchestrates the test cases sequentially and folds outcomes into a RunSummary
//
// A single test case failure never stops the run; only faults in the
// surrounding infrastructure are returned as errors.
package runner
