//go:build linux

package reaper

import (
	"github.com/prometheus/procfs"
)

func listProcesses() ([]Process, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, err
	}
	procs, err := fs.AllProcs()
	if err != nil {
		return nil, err
	}

	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		st, err := p.Stat()
		if err != nil {
			// Exited while the table was being read.
			continue
		}
		cmdline, _ := p.CmdLine()
		out = append(out, Process{
			PID:       st.PID,
			PPID:      st.PPID,
			Comm:      st.Comm,
			Cmdline:   cmdline,
			State:     st.State,
			StartTime: st.Starttime,
		})
	}
	return out, nil
}

// processAlive treats zombies and reused pids as gone.
func processAlive(p Process) bool {
	proc, err := procfs.NewProc(p.PID)
	if err != nil {
		return false
	}
	st, err := proc.Stat()
	if err != nil {
		return false
	}
	if st.State == "Z" || st.State == "X" {
		return false
	}
	return p.StartTime == 0 || st.Starttime == p.StartTime
}
