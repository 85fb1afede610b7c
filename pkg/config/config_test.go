package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bagbounty/bagbounty/pkg/duration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettingsValid(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, "subfinder", s.Binary("subfinder"))
	assert.Equal(t, "unknown", s.Binary("unknown"))
	assert.Equal(t, "recon_reports", s.ReportFolder("recon"))
	assert.Equal(t, "custom", s.ReportFolder("custom"))
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bagbounty.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tools:
  httpx: /opt/pd/httpx
ports: [443]
katana-depth: 2
download-timeout: 90s
`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/pd/httpx", s.Binary("httpx"))
	assert.Equal(t, "subfinder", s.Binary("subfinder"), "unspecified tools keep defaults")
	assert.Equal(t, []int{443}, s.Ports)
	assert.Equal(t, 2, s.KatanaDepth)
	assert.Equal(t, 90*time.Second, time.Duration(s.DownloadTimeout))
}

func TestLoadEmptyPath(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Duration(duration.Download), s.DownloadTimeout)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"bad yaml", "ports: [", ErrInvalidConfig},
		{"bad port", "ports: [70000]", ErrInvalidConfig},
		{"no ports", "ports: []", ErrMissingRequired},
		{"bad regex", "sensitive-ext: '(['", ErrInvalidConfig},
		{"empty tool", "tools: {httpx: ''}", ErrMissingRequired},
		{"bad duration", "download-timeout: soon", ErrInvalidConfig},
		{"unknown signature binary", "signatures: [{binary: bash}]", ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			_, err := Load(path)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVars(t *testing.T) {
	s := Default()
	s.Ports = []int{80, 8443}
	s.SecretPatterns = map[string]string{"b": "B+", "a": "A+"}

	v := s.Vars()
	assert.Equal(t, "80,8443", v["ports"])
	assert.Equal(t, "200", v["httpx_threads"])
	assert.Equal(t, "(A+)|(B+)", v["secret_pattern"])
	assert.Equal(t, "katana", v["tool.katana"])
	assert.Equal(t, "woff,css,png,svg,jpg,woff2,jpeg,gif", v["blacklist_ext"])
}

func TestReapSignatures(t *testing.T) {
	s := Default()
	s.Tools["katana"] = "/usr/local/bin/katana-v2"
	sigs := s.ReapSignatures()
	require.Len(t, sigs, 6)
	assert.Equal(t, "katana-v2", sigs[3].Binary)

	s.Signatures = sigs[:1]
	assert.Len(t, s.ReapSignatures(), 1)
}

func TestValidDomain(t *testing.T) {
	assert.True(t, ValidDomain("example.com"))
	assert.True(t, ValidDomain("a-b.sub.Example.co.uk"))
	assert.False(t, ValidDomain("example"))
	assert.False(t, ValidDomain("-bad.com"))
	assert.False(t, ValidDomain("evil.com; rm -rf /"))
	assert.False(t, ValidDomain("$(id).com"))
}

func TestParseRunDefaults(t *testing.T) {
	r, err := ParseRun([]string{"Example.com"})
	require.NoError(t, err)
	assert.Equal(t, "example.com", r.Domain)
	assert.Equal(t, 3, r.Threads)
	assert.Equal(t, duration.StageHard, r.HardTimeout)
	assert.Equal(t, duration.StageActivity, r.ActivityTimeout)
	assert.Equal(t, duration.HangCheck, r.HangCheck)
	assert.Equal(t, "info", r.LogLevel)
}

func TestParseRunFlagsAfterDomain(t *testing.T) {
	r, err := ParseRun([]string{"example.com", "-threads", "5", "-activity-timeout", "0", "-skip-scan", "-timeout=60"})
	require.NoError(t, err)
	assert.Equal(t, "example.com", r.Domain)
	assert.Equal(t, 5, r.Threads)
	assert.Zero(t, r.ActivityTimeout)
	assert.True(t, r.SkipScan)
	assert.Equal(t, time.Minute, r.HardTimeout)
}

func TestParseRunErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"missing domain", nil, ErrMissingRequired},
		{"bad domain", []string{"not a domain"}, ErrInvalidConfig},
		{"zero threads", []string{"-threads", "0", "example.com"}, ErrInvalidConfig},
		{"zero timeout", []string{"-timeout", "0", "example.com"}, ErrInvalidConfig},
		{"bad level", []string{"-log-level", "loud", "example.com"}, ErrInvalidConfig},
		{"unknown flag", []string{"-nope", "example.com"}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRun(tt.args)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseReap(t *testing.T) {
	r, err := ParseReap([]string{"-k", "katana, nuclei,,", "-grace", "1", "-dry-run"})
	require.NoError(t, err)
	assert.Equal(t, []string{"katana", "nuclei"}, r.Keywords)
	assert.Equal(t, time.Second, r.Grace)
	assert.True(t, r.DryRun)

	_, err = ParseReap([]string{"-grace", "-1"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
