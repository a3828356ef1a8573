// SPDX-License-Identifier: MIT

// Package procgroup starts encoder processes in their own process group
// and reaps the whole group on cancellation, so helper processes the
// encoder forks cannot outlive their task.
package procgroup

import (
	"errors"
	"os/exec"
	"time"
)

// ErrKillFailed is returned when a process group survives both SIGTERM
// and SIGKILL within the allowed timeout.
var ErrKillFailed = errors.New("kill operation failed")

// Set configures the command to start in a new process group.
// Mandatory for KillGroup to function as a group reaper.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// KillGroup terminates an entire process group tree: SIGTERM, a grace
// period, then SIGKILL. The process must have been spawned after
// procgroup.Set(cmd).
func KillGroup(pid int, grace, timeout time.Duration) error {
	return killGroup(pid, grace, timeout)
}
