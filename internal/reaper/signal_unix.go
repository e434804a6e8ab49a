//go:build !windows

package reaper

import "syscall"

// terminateProcess sends SIGTERM, the graceful termination signal.
// The occupant can catch it and run shutdown handlers.
func terminateProcess(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// killProcess sends SIGKILL, which cannot be caught or ignored.
// The process ends immediately without running any cleanup of its own.
func killProcess(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}
