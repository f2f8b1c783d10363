// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package agentcard

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/go-a2a/a2a-taskd"
)

//go:embed agent_card.schema.json
var defaultSchema []byte

const schemaURL = "agent_card.schema.json"

// SchemaPolicyChecker validates cards against a JSON schema.
type SchemaPolicyChecker struct {
	schema *jsonschema.Schema
}

var _ PolicyChecker = (*SchemaPolicyChecker)(nil)

// NewSchemaPolicyChecker compiles schema, or the built-in agent card schema
// when schema is empty.
func NewSchemaPolicyChecker(schema []byte) (*SchemaPolicyChecker, error) {
	if len(schema) == 0 {
		schema = defaultSchema
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return nil, fmt.Errorf("unmarshal agent card schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add agent card schema: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile agent card schema: %w", err)
	}
	return &SchemaPolicyChecker{schema: compiled}, nil
}

// Check implements [PolicyChecker].
func (p *SchemaPolicyChecker) Check(_ context.Context, card *a2a.AgentCard) error {
	data, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("encode agent card: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode agent card: %w", err)
	}
	if err := p.schema.Validate(doc); err != nil {
		return fmt.Errorf("agent card violates policy: %w", err)
	}
	return nil
}
