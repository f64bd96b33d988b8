// Package modelgateway defines the boundary contract the spec calls the
// "Model Gateway": an unstructured chat operation and a schema-constrained
// one, each owning its own retry/backoff over transient failures. The wire
// protocol to any concrete provider is explicitly out of scope (spec §1);
// this package ships only the interface, the shared error taxonomy, a
// retrying decorator, and a deterministic in-memory fakegateway so the rest
// of the system is runnable and testable without live credentials.
package modelgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// StructuredRequest asks the Gateway for a payload matching Schema.
type StructuredRequest struct {
	SystemPrompt string
	UserPrompt   string
	SchemaName   string
	Schema       map[string]any
}

// Gateway is the Model/Embedding Gateway boundary (spec §6). Implementations
// own their own retry/backoff for rate-limit and transient-error classes and
// surface exhausted attempts as a single typed failure (an Error with
// Retryable() == true that has run out of attempts still satisfies Error).
type Gateway interface {
	// Chat performs an unstructured text completion.
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// ChatStructured performs a schema-constrained completion and returns
	// the raw JSON payload; callers unmarshal and (redundantly, in depth)
	// validate it against their own compiled schema.
	ChatStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, error)
}

// ChatStructuredInto invokes Gateway.ChatStructured, validates the response
// against a compiled JSON Schema, and unmarshals it into out. Malformed
// payloads become SchemaParseError rather than a partially-populated out
// (spec §9: "reject malformed payloads ... rather than attempting partial
// recovery").
func ChatStructuredInto(ctx context.Context, gw Gateway, req StructuredRequest, compiled *jsonschema.Schema, out any) error {
	raw, err := gw.ChatStructured(ctx, req)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &SchemaParseError{Schema: req.SchemaName, Cause: err}
	}
	if compiled != nil {
		if err := compiled.Validate(doc); err != nil {
			return &SchemaParseError{Schema: req.SchemaName, Cause: err}
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &SchemaParseError{Schema: req.SchemaName, Cause: err}
	}
	return nil
}

// CompileSchema compiles a JSON-Schema-shaped map for repeated validation,
// grounded on the teacher's tool-arg schema compilation
// (internal/agent/tool_registry.go's compileSchema).
func CompileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("modelgateway: marshal schema %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := c.AddResource(resource, strings.NewReader(string(b))); err != nil {
		return nil, fmt.Errorf("modelgateway: add schema resource %s: %w", name, err)
	}
	compiled, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("modelgateway: compile schema %s: %w", name, err)
	}
	return compiled, nil
}
