//go:build !linux

package reaper

func listProcesses() ([]Process, error) {
	return nil, ErrUnsupported
}

func processAlive(Process) bool {
	return false
}
