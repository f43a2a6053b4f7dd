package policy

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/format"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

// LoadError reports an invalid policy file, with the CUE position when one
// is available.
type LoadError struct {
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Load reads a CUE policy file. Fields left out take their defaults;
// unknown fields and out-of-range values are errors.
func Load(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy: %w", err)
	}
	return Parse(path, data)
}

// Parse is Load for in-memory sources. name is used in error positions.
func Parse(name string, src []byte) (Policy, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Policy{}, fmt.Errorf("compile policy schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return Policy{}, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Policy")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Policy{}, formatCUEError(err)
	}

	var p Policy
	if err := unified.Decode(&p); err != nil {
		return Policy{}, formatCUEError(err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, &LoadError{Message: err.Error()}
	}
	return p, nil
}

// Format renders p as CUE source that Parse accepts.
func Format(p Policy) ([]byte, error) {
	v := cuecontext.New().Encode(p)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}
	out, err := format.Node(v.Syntax(cue.Concrete(true)))
	if err != nil {
		return nil, fmt.Errorf("format policy: %w", err)
	}
	return out, nil
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Message: err.Error()}
	}

	first := errs[0]
	le := &LoadError{Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
