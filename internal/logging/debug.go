package logging

import (
	"fmt"
	"os"
)

var (
	debugEnabled = os.Getenv("AGORA_DEBUG") != ""
	verboseMode  = false
	quietMode    = false
)

// DebugEnabled reports whether debug output is on, either via the
// AGORA_DEBUG environment variable or SetVerbose.
func DebugEnabled() bool {
	return debugEnabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet enables quiet mode (suppress non-essential output)
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet returns true if quiet mode is enabled
func IsQuiet() bool {
	return quietMode
}

// Logf writes debug output to stderr when debug is enabled.
func Logf(format string, args ...interface{}) {
	if debugEnabled || verboseMode {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Printf writes debug output to stdout when debug is enabled.
func Printf(format string, args ...interface{}) {
	if debugEnabled || verboseMode {
		fmt.Printf(format, args...)
	}
}

// PrintNormal prints output unless quiet mode is enabled
// Use this for normal informational output that should be suppressed in quiet mode
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		fmt.Printf(format, args...)
	}
}

// PrintlnNormal prints a line unless quiet mode is enabled
func PrintlnNormal(args ...interface{}) {
	if !quietMode {
		fmt.Println(args...)
	}
}
