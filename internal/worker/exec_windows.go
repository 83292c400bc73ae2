//go:build windows

package worker

import (
	"os"
	"os/exec"
)

// setupProcessGroup is a no-op on Windows; there is no POSIX process
// group to isolate the child from console signals in the same way.
func setupProcessGroup(cmd *exec.Cmd) {}

// exitInfo extracts the exit code from a finished process. Windows
// processes do not terminate via POSIX signals, so signal is always nil.
func exitInfo(state *os.ProcessState) (exitCode *int, signal *int) {
	code := state.ExitCode()
	return &code, nil
}
