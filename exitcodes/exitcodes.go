// Package exitcodes defines the standard exit codes used by convtest.
package exitcodes

// Exit code constants used by convtest.
//
// Failed test cases are reported in the JUnit report, not through the exit
// status, so a completed run always exits with Success.
const (
	Success    = 0 // Run completed and reports were written
	RuntimeErr = 1 // Configuration, report or other operational errors
)
