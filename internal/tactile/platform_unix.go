//go:build !windows

package tactile

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// getProcessResourceUsage extracts resource usage on Unix systems.
func getProcessResourceUsage(cmd *exec.Cmd) *ResourceUsage {
	if cmd.ProcessState == nil {
		return nil
	}

	rusage, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage)
	if !ok || rusage == nil {
		return nil
	}

	return &ResourceUsage{
		UserTimeMs:                 int64(rusage.Utime.Sec)*1000 + int64(rusage.Utime.Usec)/1000,
		SystemTimeMs:               int64(rusage.Stime.Sec)*1000 + int64(rusage.Stime.Usec)/1000,
		MaxRSSBytes:                getMaxRSSBytes(rusage),
		VoluntaryContextSwitches:   int64(rusage.Nvcsw),
		InvoluntaryContextSwitches: int64(rusage.Nivcsw),
	}
}

// setupProcessGroup configures the command to run in its own process group.
// This allows killing all child processes when the parent is terminated.
func setupProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killProcessGroup kills the process and all its children on Unix.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err == nil && pgid > 0 {
		_ = unix.Kill(-pgid, unix.SIGKILL)
	}

	// Also kill the main process directly as a fallback
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// createRlimits generates rlimit values from ResourceLimits.
// Returns a map of resource type to rlimit struct.
func createRlimits(limits *ResourceLimits) map[int]Rlimit {
	rlimits := make(map[int]Rlimit)

	if limits == nil {
		return rlimits
	}

	// Memory limit (RLIMIT_AS - address space)
	if limits.MaxMemoryBytes > 0 {
		rlimits[unix.RLIMIT_AS] = Rlimit{
			Cur: uint64(limits.MaxMemoryBytes),
			Max: uint64(limits.MaxMemoryBytes),
		}
	}

	// CPU time limit in seconds. The soft limit delivers SIGXCPU, which
	// identifies the kill; the hard limit one second later is the backstop.
	if limits.MaxCPUTimeMs > 0 {
		cpuSeconds := uint64((limits.MaxCPUTimeMs + 999) / 1000)
		rlimits[unix.RLIMIT_CPU] = Rlimit{
			Cur: cpuSeconds,
			Max: cpuSeconds + 1,
		}
	}

	if limits.MaxFileSize > 0 {
		rlimits[unix.RLIMIT_FSIZE] = Rlimit{
			Cur: uint64(limits.MaxFileSize),
			Max: uint64(limits.MaxFileSize),
		}
	}

	return rlimits
}

// signalKill reports whether the process died from a signal, and whether
// that signal is the kernel enforcing a resource limit.
func signalKill(state *os.ProcessState) (reason string, limit bool, ok bool) {
	if state == nil {
		return "", false, false
	}
	ws, isWait := state.Sys().(syscall.WaitStatus)
	if !isWait || !ws.Signaled() {
		return "", false, false
	}
	sig := ws.Signal()
	switch sig {
	case syscall.SIGXCPU:
		return "CPU time limit exceeded", true, true
	case syscall.SIGXFSZ:
		return "file size limit exceeded", true, true
	case syscall.SIGKILL:
		return "killed (SIGKILL)", true, true
	default:
		return "signal: " + sig.String(), false, true
	}
}
