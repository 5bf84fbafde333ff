// Package logging prints progress messages for the compiler driver. They are
// silent unless verbose output was requested.
package logging

import (
	"fmt"

	"github.com/pterm/pterm"
)

var verbose bool

// SetVerbose toggles phase and info messages.
func SetVerbose(v bool) { verbose = v }

// Phase announces the start of a compilation phase.
func Phase(format string, args ...interface{}) {
	if !verbose {
		return
	}
	pterm.Info.Println(fmt.Sprintf(format, args...))
}

// Done announces a successfully finished run.
func Done(format string, args ...interface{}) {
	if !verbose {
		return
	}
	pterm.Success.Println(fmt.Sprintf(format, args...))
}

// Note prints a warning-styled message that is not tied to a source
// location, such as configuration fallbacks.
func Note(format string, args ...interface{}) {
	pterm.Warning.Println(fmt.Sprintf(format, args...))
}
