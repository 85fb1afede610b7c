package pipeline

import (
	_ "embed"
)

//go:embed builtin.yaml
var builtinYAML []byte

// Builtin returns the default recon pipeline.
func Builtin() *Pipeline {
	p, err := Parse(builtinYAML)
	if err != nil {
		panic("pipeline: built-in definition is invalid: " + err.Error())
	}
	return p
}
