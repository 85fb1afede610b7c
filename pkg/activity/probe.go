package activity

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
)

// Probe reports the current size of whatever a stage is producing.
type Probe interface {
	Size() (int64, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func() (int64, error)

// Size calls f.
func (f ProbeFunc) Size() (int64, error) { return f() }

// FileSize probes the size of path. A file that does not exist yet has size 0.
// A directory reports the total size of the regular files beneath it, so
// download stages that fill a folder count as active.
func FileSize(path string) Probe {
	return ProbeFunc(func() (int64, error) {
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		if !info.IsDir() {
			return info.Size(), nil
		}
		return treeSize(path)
	})
}

func treeSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			// Files can vanish while a tool renames them.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// Counter is an io.Writer that counts bytes passed through to an
// underlying writer. It is a Probe over the live stream.
type Counter struct {
	w io.Writer
	n atomic.Int64
}

// NewCounter wraps w. A nil w discards.
func NewCounter(w io.Writer) *Counter {
	if w == nil {
		w = io.Discard
	}
	return &Counter{w: w}
}

// Write forwards p and counts what was written.
func (c *Counter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}

// Size returns the number of bytes written so far.
func (c *Counter) Size() (int64, error) { return c.n.Load(), nil }
