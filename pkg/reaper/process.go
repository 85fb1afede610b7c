package reaper

import (
	"path/filepath"
	"sort"
	"strings"
)

// commLen is the kernel's truncation length for a process name.
const commLen = 15

// Process is one row of the OS process table.
type Process struct {
	PID       int
	PPID      int
	Comm      string
	Cmdline   []string
	State     string
	StartTime uint64
}

// CommandLine joins argv, falling back to the bracketed kernel name for
// processes without one (kernel threads, zombies).
func (p Process) CommandLine() string {
	if len(p.Cmdline) == 0 {
		return "[" + p.Comm + "]"
	}
	return strings.Join(p.Cmdline, " ")
}

// Binary returns the base name of argv[0], or the kernel name.
func (p Process) Binary() string {
	if len(p.Cmdline) > 0 && p.Cmdline[0] != "" {
		return filepath.Base(p.Cmdline[0])
	}
	return p.Comm
}

// Args returns argv without argv[0].
func (p Process) Args() []string {
	if len(p.Cmdline) < 2 {
		return nil
	}
	return p.Cmdline[1:]
}

func (p Process) exited() bool {
	return p.State == "Z" || p.State == "X"
}

// Tree is a root process and its transitive descendants, leaves first.
type Tree struct {
	Root        Process
	Descendants []Process
}

// Size counts the root and its descendants.
func (t Tree) Size() int { return 1 + len(t.Descendants) }

// PIDs lists every pid in kill order: descendants leaves first, then root.
func (t Tree) PIDs() []int {
	out := make([]int, 0, t.Size())
	for _, p := range t.Descendants {
		out = append(out, p.PID)
	}
	return append(out, t.Root.PID)
}

// buildTree materialises the tree under root from a snapshot.
func buildTree(procs []Process, root int) (Tree, bool) {
	byPID := make(map[int]Process, len(procs))
	children := make(map[int][]Process)
	for _, p := range procs {
		byPID[p.PID] = p
		if p.PID != p.PPID {
			children[p.PPID] = append(children[p.PPID], p)
		}
	}

	rootProc, ok := byPID[root]
	if !ok {
		return Tree{}, false
	}

	type node struct {
		p     Process
		depth int
	}
	var desc []node
	visited := map[int]bool{root: true}
	queue := []node{{rootProc, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range children[cur.p.PID] {
			if visited[c.PID] {
				continue
			}
			visited[c.PID] = true
			n := node{c, cur.depth + 1}
			desc = append(desc, n)
			queue = append(queue, n)
		}
	}

	sort.SliceStable(desc, func(i, j int) bool {
		if desc[i].depth != desc[j].depth {
			return desc[i].depth > desc[j].depth
		}
		return desc[i].p.PID > desc[j].p.PID
	})

	t := Tree{Root: rootProc, Descendants: make([]Process, len(desc))}
	for i, n := range desc {
		t.Descendants[i] = n.p
	}
	return t, true
}

// ancestors returns the pids above pid in the snapshot, pid excluded.
func ancestors(procs []Process, pid int) map[int]bool {
	parent := make(map[int]int, len(procs))
	for _, p := range procs {
		parent[p.PID] = p.PPID
	}
	out := make(map[int]bool)
	for cur, ok := parent[pid]; ok && cur > 0 && !out[cur]; cur, ok = parent[cur] {
		out[cur] = true
	}
	return out
}
