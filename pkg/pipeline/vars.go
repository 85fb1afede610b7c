package pipeline

import (
	"fmt"
	"maps"
	"path/filepath"
	"regexp"
	"strings"
)

// expand performs plain string substitution of {{name}} and {{.name}}.
// text/template is avoided so pipeline files cannot run template logic.
func expand(input string, vars map[string]string) string {
	result := input
	for k, v := range vars {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
		result = strings.ReplaceAll(result, "{{."+k+"}}", v)
	}
	return result
}

var placeholderRe = regexp.MustCompile(`\{\{\s*\.?[A-Za-z0-9_.-]+\s*\}\}`)

// unresolved returns the first placeholder left in s.
func unresolved(s string) (string, bool) {
	m := placeholderRe.FindString(s)
	return m, m != ""
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_./:,=@%+-]+$`)

// shellQuote single-quotes s unless it is made only of characters the
// shell passes through untouched.
func shellQuote(s string) string {
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// quoteAll returns a copy of vars with every value shell-quoted.
func quoteAll(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = shellQuote(v)
	}
	return out
}

// mergeVars layers maps left to right; later maps win.
func mergeVars(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, l := range layers {
		maps.Copy(out, l)
	}
	return out
}

// resolvePath expands vars in p and anchors it at the workspace.
func resolvePath(p, workspace string, vars map[string]string) (string, error) {
	p = expand(p, vars)
	if m, ok := unresolved(p); ok {
		return "", fmt.Errorf("%w: %s in path %q", ErrUnresolvedVariable, m, p)
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	return filepath.Join(workspace, p), nil
}

// commandVars builds the substitution map for one invocation: quoted run
// variables plus input, inputs and output.
func commandVars(base map[string]string, inputs []string, output string) map[string]string {
	vars := quoteAll(base)
	quoted := make([]string, len(inputs))
	for i, in := range inputs {
		quoted[i] = shellQuote(in)
	}
	if len(inputs) > 0 {
		vars["input"] = quoted[0]
	}
	vars["inputs"] = strings.Join(quoted, " ")
	if output != "" {
		vars["output"] = shellQuote(output)
	}
	return vars
}

// renderCommand expands a command template and rejects leftovers.
func renderCommand(tmpl string, vars map[string]string) (string, error) {
	cmd := expand(tmpl, vars)
	if m, ok := unresolved(cmd); ok {
		return "", fmt.Errorf("%w: %s", ErrUnresolvedVariable, m)
	}
	return cmd, nil
}
