//go:build !unix

package reaper

import "os"

func sendSignal(pid int, force bool) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}

// KillGroup is a no-op where process groups are unavailable.
func KillGroup(int) error { return nil }
