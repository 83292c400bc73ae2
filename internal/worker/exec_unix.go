//go:build unix

package worker

import (
	"os"
	"os/exec"
	"syscall"
)

// setupProcessGroup puts cmd in its own process group so the daemon's
// own SIGINT/SIGTERM handling never reaches the child: signals sent to
// the daemon's process group stop at the child's group boundary.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// exitInfo extracts the exit code or terminating signal from a finished
// process, mutually exclusive per the job outcome contract.
func exitInfo(state *os.ProcessState) (exitCode *int, signal *int) {
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		code := state.ExitCode()
		return &code, nil
	}
	if ws.Signaled() {
		sig := int(ws.Signal())
		return nil, &sig
	}
	code := ws.ExitStatus()
	return &code, nil
}
