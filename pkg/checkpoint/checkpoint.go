// Package checkpoint persists which pipeline stages finished successfully so
// an interrupted run can resume without repeating them.
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bagbounty/bagbounty/pkg/jsonutil"
)

// Version of the state file format.
const Version = "1"

// ErrTargetMismatch is returned by Resume when the file belongs to a
// different target.
var ErrTargetMismatch = errors.New("checkpoint: state file belongs to another target")

// State is the persisted run state.
type State struct {
	Version    string          `json:"version"`
	Target     string          `json:"target"`
	Pipeline   string          `json:"pipeline"`
	StartTime  time.Time       `json:"start_time"`
	LastUpdate time.Time       `json:"last_update"`
	Completed  map[string]bool `json:"completed"`
}

// Manager owns one state file. Methods are safe for concurrent use.
type Manager struct {
	FilePath string

	mu    sync.Mutex
	state *State
}

// NewManager creates a manager for filePath.
func NewManager(filePath string) *Manager {
	return &Manager{FilePath: filePath}
}

// Init starts a fresh state, discarding anything loaded before.
func (m *Manager) Init(target, pipeline string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.state = &State{
		Version:    Version,
		Target:     target,
		Pipeline:   pipeline,
		StartTime:  now,
		LastUpdate: now,
		Completed:  make(map[string]bool),
	}
}

// Load reads the state file.
func (m *Manager) Load() (*State, error) {
	data, err := os.ReadFile(m.FilePath)
	if err != nil {
		return nil, err
	}
	var st State
	if err := jsonutil.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse %s: %w", m.FilePath, err)
	}
	if st.Completed == nil {
		st.Completed = make(map[string]bool)
	}

	m.mu.Lock()
	m.state = &st
	m.mu.Unlock()
	return &st, nil
}

// Resume loads the state file for target, or starts a fresh state when
// there is none.
func (m *Manager) Resume(target, pipeline string) error {
	st, err := m.Load()
	if errors.Is(err, fs.ErrNotExist) {
		m.Init(target, pipeline)
		return nil
	}
	if err != nil {
		return err
	}
	if st.Target != target {
		return fmt.Errorf("%w: %s has %q, run is for %q", ErrTargetMismatch, m.FilePath, st.Target, target)
	}
	return nil
}

// Save writes the state atomically (temp file, then rename).
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil
	}
	m.state.LastUpdate = time.Now()

	data, err := jsonutil.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.FilePath), 0o755); err != nil {
		return err
	}
	tmp := m.FilePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.FilePath)
}

// MarkCompleted records stageID and saves.
func (m *Manager) MarkCompleted(stageID string) error {
	m.mu.Lock()
	if m.state == nil {
		m.mu.Unlock()
		return nil
	}
	m.state.Completed[stageID] = true
	m.mu.Unlock()
	return m.Save()
}

// IsCompleted reports whether stageID finished in an earlier run.
func (m *Manager) IsCompleted(stageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != nil && m.state.Completed[stageID]
}

// Completed lists completed stage ids in sorted order.
func (m *Manager) Completed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil
	}
	out := make([]string, 0, len(m.state.Completed))
	for id, done := range m.state.Completed {
		if done {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Delete removes the state file. A missing file is not an error.
func (m *Manager) Delete() error {
	if err := os.Remove(m.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
