package harness

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// SchemaError lists the places where a scenario document does not match
// the scenario schema.
type SchemaError struct {
	File   string
	Issues []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: schema violation: %s", e.File, strings.Join(e.Issues, "; "))
}

// ValidateSchema checks a scenario YAML document against the embedded CUE
// schema. filename is only used in messages.
func ValidateSchema(filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile scenario schema: %w", err)
	}

	f, err := cueyaml.Extract(filename, data)
	if err != nil {
		return newSchemaError(filename, err)
	}
	doc := ctx.BuildFile(f)
	if err := doc.Err(); err != nil {
		return newSchemaError(filename, err)
	}

	v := schema.LookupPath(cue.ParsePath("#Scenario")).Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return newSchemaError(filename, err)
	}
	return nil
}

func newSchemaError(filename string, err error) *SchemaError {
	se := &SchemaError{File: filename}
	for _, e := range cueerrors.Errors(err) {
		msg := e.Error()
		if pos := e.Position(); pos.IsValid() {
			msg = fmt.Sprintf("%d:%d: %s", pos.Line(), pos.Column(), msg)
		}
		se.Issues = append(se.Issues, msg)
	}
	if len(se.Issues) == 0 {
		se.Issues = []string{err.Error()}
	}
	return se
}
