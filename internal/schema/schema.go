// Package schema checks trace documents against the wire contract before
// they are parsed or rendered, so malformed structures fail at the boundary
// with a location instead of surfacing mid-render.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed trace.schema.json
var traceSchema []byte

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("trace.schema.json", bytes.NewReader(traceSchema)); err != nil {
			compileErr = err
			return
		}
		compiled, compileErr = compiler.Compile("trace.schema.json")
	})
	return compiled, compileErr
}

// Validate checks that data is a structurally valid trace document.
func Validate(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile trace schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("trace is not valid JSON: %w", err)
	}
	if err := s.Validate(instance); err != nil {
		return fmt.Errorf("trace does not match schema: %w", err)
	}
	return nil
}

// ValidateFile validates the trace document at path.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := Validate(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
