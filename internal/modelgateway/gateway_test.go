package modelgateway_test

import (
	"context"
	"testing"

	"github.com/renbytes/uroboros/internal/modelgateway"
	"github.com/renbytes/uroboros/internal/modelgateway/fakegateway"
)

var echoSchema = map[string]any{
	"type":     "object",
	"required": []string{"value"},
	"properties": map[string]any{
		"value": map[string]any{"type": "string"},
	},
}

type echoPayload struct {
	Value string `json:"value"`
}

func TestChatStructuredInto_ValidPayload(t *testing.T) {
	compiled, err := modelgateway.CompileSchema("Echo", echoSchema)
	if err != nil {
		t.Fatalf("CompileSchema: %v", err)
	}
	gw := fakegateway.New()
	gw.QueueStructured("Echo", map[string]any{"value": "hello"}, nil)

	var out echoPayload
	req := modelgateway.StructuredRequest{SchemaName: "Echo", Schema: echoSchema}
	if err := modelgateway.ChatStructuredInto(context.Background(), gw, req, compiled, &out); err != nil {
		t.Fatalf("ChatStructuredInto: %v", err)
	}
	if out.Value != "hello" {
		t.Fatalf("expected value %q, got %q", "hello", out.Value)
	}
}

func TestChatStructuredInto_SchemaViolationIsParseError(t *testing.T) {
	compiled, err := modelgateway.CompileSchema("Echo2", echoSchema)
	if err != nil {
		t.Fatalf("CompileSchema: %v", err)
	}
	gw := fakegateway.New()
	gw.QueueStructured("Echo2", map[string]any{"wrong_field": 1}, nil)

	var out echoPayload
	req := modelgateway.StructuredRequest{SchemaName: "Echo2", Schema: echoSchema}
	err = modelgateway.ChatStructuredInto(context.Background(), gw, req, compiled, &out)
	if err == nil {
		t.Fatalf("expected a schema validation error")
	}
	if _, ok := err.(*modelgateway.SchemaParseError); !ok {
		t.Fatalf("expected *SchemaParseError, got %T", err)
	}
}

func TestChatStructuredInto_PropagatesGatewayError(t *testing.T) {
	gw := fakegateway.New()
	wantErr := modelgateway.ErrorFromHTTPStatus("openai", 500, "boom", nil)
	gw.QueueStructured("Echo3", nil, wantErr)

	var out echoPayload
	req := modelgateway.StructuredRequest{SchemaName: "Echo3"}
	err := modelgateway.ChatStructuredInto(context.Background(), gw, req, nil, &out)
	if err != wantErr {
		t.Fatalf("expected the gateway error to propagate unchanged, got %v", err)
	}
}

func TestCompileSchema_InvalidSchemaErrors(t *testing.T) {
	bad := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"$ref": "#/definitions/does_not_exist"},
		},
	}
	if _, err := modelgateway.CompileSchema("Bad", bad); err == nil {
		t.Fatalf("expected an error compiling a schema with a dangling $ref")
	}
}
