package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"

	"gopkg.in/yaml.v3"

	domain "github.com/goliatone/go-domain"
)

// Document is a set of rule definitions grouped by type alias.
//
//	types:
//	  - type: invoice
//	    rules:
//	      - name: number_required
//	        engine: expr
//	        expression: 'number != ""'
//	        properties: [Number]
//	        severity: error
//	        message: invoice number is required
type Document struct {
	Types []TypeDefinition `yaml:"types"`
}

// TypeDefinition lists the rules of one aliased type.
type TypeDefinition struct {
	Type  string       `yaml:"type"`
	Rules []Definition `yaml:"rules"`
}

// Definition is the serialized form of a rule.
type Definition struct {
	Name       string   `yaml:"name"`
	Engine     string   `yaml:"engine,omitempty"`
	Expression string   `yaml:"expression"`
	Field      string   `yaml:"field,omitempty"`
	Properties []string `yaml:"properties,omitempty"`
	Affects    []string `yaml:"affects,omitempty"`
	Severity   string   `yaml:"severity,omitempty"`
	Message    string   `yaml:"message,omitempty"`
}

// Descriptor converts the definition, parsing its severity.
func (d Definition) Descriptor() (Descriptor, error) {
	severity, err := domain.ParseSeverity(d.Severity)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: rule %q: %v", ErrInvalidDefinition, d.Name, err)
	}
	return Descriptor{
		Name:       d.Name,
		Engine:     d.Engine,
		Expression: d.Expression,
		Severity:   severity,
		Message:    d.Message,
		Properties: d.Properties,
		Affects:    d.Affects,
	}, nil
}

// LoadDefinitions decodes a YAML rule document. Unknown keys are rejected.
func LoadDefinitions(r io.Reader) (Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Document{}, nil
		}
		return Document{}, fmt.Errorf("rules: decode definitions: %w", err)
	}
	return doc, nil
}

// ParseDefinitions is LoadDefinitions over a byte slice.
func ParseDefinitions(data []byte) (Document, error) {
	return LoadDefinitions(bytes.NewReader(data))
}

// Apply compiles every definition and registers it on engine under the type
// registered for its alias. Nothing is registered when any definition fails.
func (d Document) Apply(engine *Engine) error {
	if engine == nil {
		return fmt.Errorf("rules: apply definitions: nil engine")
	}
	var order []reflect.Type
	batch := make(map[reflect.Type][]Rule, len(d.Types))
	for _, typeDef := range d.Types {
		typ, ok := engine.resolveAlias(typeDef.Type)
		if !ok {
			return fmt.Errorf("%w: unknown type alias %q", ErrInvalidDefinition, typeDef.Type)
		}
		if _, seen := batch[typ]; !seen {
			order = append(order, typ)
			batch[typ] = nil
		}
		for _, def := range typeDef.Rules {
			desc, err := def.Descriptor()
			if err != nil {
				return err
			}
			rule, err := engine.Compile(desc, def.Field)
			if err != nil {
				return fmt.Errorf("rules: %s.%s: %w", typeDef.Type, def.Name, err)
			}
			batch[typ] = append(batch[typ], rule)
		}
	}
	return engine.registerBatch(order, batch)
}
