//go:build windows

package reaper

import "os"

// terminateProcess ends a process on Windows. There is no cross-process
// equivalent of SIGTERM that a console program could catch, so the
// graceful stage degrades to the same TerminateProcess call as the
// forceful one and escalation never has extra work to do.
func terminateProcess(pid int) error {
	return killProcess(pid)
}

// killProcess forcefully terminates a process by PID.
// os.Process.Kill calls TerminateProcess with exit code 1.
func killProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
