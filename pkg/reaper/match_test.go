package reaper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordsCaseInsensitive(t *testing.T) {
	p := Process{Cmdline: []string{"/usr/local/bin/Katana", "-u", "hosts.txt"}}
	assert.True(t, Keywords{"katana"}.Match(p))
	assert.True(t, Keywords{"nope", "HOSTS"}.Match(p))
	assert.False(t, Keywords{"subfinder"}.Match(p))
	assert.False(t, Keywords{""}.Match(p))
}

func TestSignatureMatch(t *testing.T) {
	httpx := Process{Cmdline: []string{"/opt/go/bin/httpx", "-l", "subdomains/all.txt", "-silent"}}
	editor := Process{Cmdline: []string{"vim", "httpx.yaml"}}

	sig := Signature{Binary: "httpx", Args: []string{"-l", "subdomains/"}}
	assert.True(t, sig.Match(httpx))
	assert.False(t, sig.Match(editor))
	assert.False(t, Signature{Binary: "httpx", Args: []string{"-u"}}.Match(httpx))
	assert.False(t, Signature{}.Match(httpx))
}

func TestSignatureMatchesTruncatedComm(t *testing.T) {
	p := Process{Comm: "verylongtoolnam"}
	assert.True(t, Signature{Binary: "verylongtoolname"}.Match(p))
	assert.False(t, Signature{Binary: "verylongtoolname"}.Match(Process{Comm: "other"}))
}

func TestToolSignatures(t *testing.T) {
	sigs := ToolSignatures("/usr/bin/subfinder", "httpx", "subfinder", "")
	assert.Equal(t, Signatures{{Name: "subfinder", Binary: "subfinder"}, {Name: "httpx", Binary: "httpx"}}, sigs)
}

func TestValidateSignatures(t *testing.T) {
	tools := []string{"/usr/bin/subfinder", "httpx"}

	assert.NoError(t, ValidateSignatures(Signatures{{Binary: "subfinder"}, {Binary: "httpx", Args: []string{"-l"}}}, tools))
	assert.ErrorIs(t, ValidateSignatures(Signatures{{Binary: "python3"}}, tools), ErrUnknownBinary)
	assert.ErrorIs(t, ValidateSignatures(Signatures{{Args: []string{"x"}}}, tools), ErrEmptySignature)
}

func TestBuildTreeIgnoresCycles(t *testing.T) {
	procs := []Process{{PID: 1, PPID: 2}, {PID: 2, PPID: 1}, {PID: 3, PPID: 2}}
	tree, ok := buildTree(procs, 1)
	assert.True(t, ok)
	assert.Equal(t, []int{3, 2, 1}, tree.PIDs())
}
