package reaper

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Matcher selects processes to reap.
type Matcher interface {
	Match(p Process) bool
}

// Keywords matches any process whose command line contains one of the
// keywords, case-insensitively.
type Keywords []string

// Match implements Matcher.
func (k Keywords) Match(p Process) bool {
	line := strings.ToLower(p.CommandLine())
	for _, kw := range k {
		if kw != "" && strings.Contains(line, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Signature identifies one tool invocation shape: the binary that was
// executed and substrings that must each appear in some argument.
type Signature struct {
	Name   string   `yaml:"name,omitempty"`
	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args,omitempty"`
}

// Match implements Matcher.
func (s Signature) Match(p Process) bool {
	if s.Binary == "" {
		return false
	}
	want := s.Binary
	if len(p.Cmdline) == 0 && len(want) > commLen {
		want = want[:commLen]
	}
	if p.Binary() != want {
		return false
	}
	args := p.Args()
	for _, want := range s.Args {
		if !slices.ContainsFunc(args, func(a string) bool { return strings.Contains(a, want) }) {
			return false
		}
	}
	return true
}

// Signatures matches when any member matches.
type Signatures []Signature

// Match implements Matcher.
func (s Signatures) Match(p Process) bool {
	for _, sig := range s {
		if sig.Match(p) {
			return true
		}
	}
	return false
}

// ToolSignatures returns one argument-agnostic signature per tool binary.
func ToolSignatures(binaries ...string) Signatures {
	out := make(Signatures, 0, len(binaries))
	seen := make(map[string]bool)
	for _, b := range binaries {
		b = filepath.Base(b)
		if b == "" || b == "." || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, Signature{Name: b, Binary: b})
	}
	return out
}

// ValidateSignatures rejects signatures that name a binary outside tools.
func ValidateSignatures(sigs Signatures, tools []string) error {
	allowed := make(map[string]bool, len(tools))
	for _, t := range tools {
		allowed[filepath.Base(t)] = true
	}
	for i, sig := range sigs {
		if sig.Binary == "" {
			return fmt.Errorf("%w: signature %d", ErrEmptySignature, i)
		}
		if !allowed[sig.Binary] {
			return fmt.Errorf("%w: %q", ErrUnknownBinary, sig.Binary)
		}
	}
	return nil
}
