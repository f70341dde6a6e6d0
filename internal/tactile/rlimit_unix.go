//go:build !windows

package tactile

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// Rlimit is a soft/hard resource limit pair.
type Rlimit = unix.Rlimit

// MaybeRunLimitShim must run first in main (and TestMain) of every binary
// that executes commands with CPU, memory or file-size caps. In shim mode
// it applies the caps to the current process and replaces it with the
// target; it only returns when the process is not in shim mode.
func MaybeRunLimitShim() {
	if len(os.Args) < 2 || os.Args[1] != shimArg {
		return
	}
	err := runLimitShim(os.Args[2:])
	fmt.Fprintf(os.Stderr, "c tactile limit shim: %v\n", err)
	os.Exit(127)
}

// runLimitShim only returns on failure.
func runLimitShim(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s <rlimits> <binary> [args...]", shimArg)
	}
	rlimits, err := decodeRlimits(args[0])
	if err != nil {
		return err
	}
	for res, lim := range rlimits {
		lim := clampToHard(res, lim)
		if err := unix.Setrlimit(res, &lim); err != nil {
			return fmt.Errorf("setrlimit %d: %w", res, err)
		}
	}

	path, err := exec.LookPath(args[1])
	if err != nil {
		return err
	}
	return unix.Exec(path, args[1:], os.Environ())
}

// clampToHard keeps a requested limit within the current hard limit, which
// an unprivileged process cannot raise.
func clampToHard(res int, lim Rlimit) Rlimit {
	var current Rlimit
	if err := unix.Getrlimit(res, &current); err != nil {
		return lim
	}
	if current.Max != unix.RLIM_INFINITY {
		if lim.Max > current.Max {
			lim.Max = current.Max
		}
		if lim.Cur > lim.Max {
			lim.Cur = lim.Max
		}
	}
	return lim
}
