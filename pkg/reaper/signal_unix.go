//go:build unix

package reaper

import (
	"errors"

	"golang.org/x/sys/unix"
)

func sendSignal(pid int, force bool) error {
	sig := unix.SIGTERM
	if force {
		sig = unix.SIGKILL
	}
	if err := unix.Kill(pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// KillGroup sends SIGKILL to every member of process group pgid. An empty
// group is not an error.
func KillGroup(pgid int) error {
	if pgid <= 1 {
		return nil
	}
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}
