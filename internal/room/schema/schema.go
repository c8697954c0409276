// Package schema validates inbound command payloads against per-command
// JSON Schemas before any handler sees them.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// baseURL namespaces the embedded schemas inside the compiler.
const baseURL = "https://roomserver.local/schemas/"

// Validator holds one compiled schema per command name.
// It is immutable after construction and safe for concurrent use.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded command schema.
//
// Postcondition: Returns a Validator covering each schemas/<command>.json, or an error.
func NewValidator() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("schema: reading embedded schemas: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		file := path.Join("schemas", e.Name())
		src, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("schema: reading %q: %w", file, err)
		}
		if err := compiler.AddResource(baseURL+e.Name(), bytes.NewReader(src)); err != nil {
			return nil, fmt.Errorf("schema: adding %q: %w", file, err)
		}
		names = append(names, e.Name())
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		s, err := compiler.Compile(baseURL + name)
		if err != nil {
			return nil, fmt.Errorf("schema: compiling %q: %w", name, err)
		}
		v.schemas[strings.TrimSuffix(name, ".json")] = s
	}
	return v, nil
}

// Has reports whether a schema exists for command.
func (v *Validator) Has(command string) bool {
	_, ok := v.schemas[command]
	return ok
}

// Validate checks raw against the schema for command. Commands without a
// schema accept any well-formed JSON (including an absent payload).
//
// Postcondition: Returns nil when raw conforms, or an error naming the violation.
func (v *Validator) Validate(command string, raw json.RawMessage) error {
	s, ok := v.schemas[command]
	if !ok {
		if len(raw) == 0 || json.Valid(raw) {
			return nil
		}
		return fmt.Errorf("schema: %s: payload is not valid JSON", command)
	}
	if len(raw) == 0 {
		return fmt.Errorf("schema: %s: missing payload", command)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("schema: %s: decoding payload: %w", command, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("schema: %s: %w", command, err)
	}
	return nil
}

// Commands returns the names of all commands with a schema.
func (v *Validator) Commands() []string {
	out := make([]string, 0, len(v.schemas))
	for name := range v.schemas {
		out = append(out, name)
	}
	return out
}
