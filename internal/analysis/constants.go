// Package analysis annotates 32-bit x86 listings. It resolves branch and
// call targets to symbols, recovers pushed call arguments and the strings
// they point at, and hands the resulting call findings to detectors.
package analysis

// Constants for analysis operations
const (
	// MaxStringLength is the maximum length for string extraction
	MaxStringLength = 256

	// MinStringLength is the shortest run of printable bytes reported as a string
	MinStringLength = 4

	// MaxCallArgs is the number of stack arguments recovered per call
	MaxCallArgs = 6

	// MaxTraceInstructions is the maximum number of instructions to trace
	MaxTraceInstructions = 1000
)
