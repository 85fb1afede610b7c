package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndResume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recon-example.com", "run-state.json")

	m := NewManager(path)
	require.NoError(t, m.Resume("example.com", "recon"))
	require.NoError(t, m.MarkCompleted("subdomains"))
	require.NoError(t, m.MarkCompleted("alive"))
	assert.NoFileExists(t, path+".tmp")

	again := NewManager(path)
	require.NoError(t, again.Resume("example.com", "recon"))
	assert.True(t, again.IsCompleted("subdomains"))
	assert.False(t, again.IsCompleted("katana"))
	assert.Equal(t, []string{"alive", "subdomains"}, again.Completed())
}

func TestResumeRejectsOtherTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run-state.json")
	m := NewManager(path)
	m.Init("example.com", "recon")
	require.NoError(t, m.Save())

	err := NewManager(path).Resume("other.org", "recon")
	assert.ErrorIs(t, err, ErrTargetMismatch)
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run-state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewManager(path).Load()
	assert.Error(t, err)
	assert.Error(t, NewManager(path).Resume("example.com", "recon"))
}

func TestUninitialisedManagerIsInert(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "state.json"))
	assert.NoError(t, m.MarkCompleted("x"))
	assert.NoError(t, m.Save())
	assert.False(t, m.IsCompleted("x"))
	assert.Nil(t, m.Completed())
	assert.NoError(t, m.Delete())
}
