package fakegateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/renbytes/uroboros/internal/modelgateway"
)

func TestGateway_QueueChat_FIFO(t *testing.T) {
	gw := New()
	gw.QueueChat("first", nil)
	gw.QueueChat("second", nil)

	ctx := context.Background()
	out, err := gw.Chat(ctx, "sys", "user")
	if err != nil || out != "first" {
		t.Fatalf("expected (first, nil), got (%q, %v)", out, err)
	}
	out, err = gw.Chat(ctx, "sys", "user")
	if err != nil || out != "second" {
		t.Fatalf("expected (second, nil), got (%q, %v)", out, err)
	}
}

func TestGateway_Chat_NoScriptAndNoDefaultErrors(t *testing.T) {
	gw := New()
	if _, err := gw.Chat(context.Background(), "sys", "user"); err == nil {
		t.Fatalf("expected an error with no scripted response and no default")
	}
}

func TestGateway_QueueStructured_PerSchemaFIFO(t *testing.T) {
	gw := New()
	gw.QueueStructured("A", map[string]any{"n": 1}, nil)
	gw.QueueStructured("B", map[string]any{"n": 2}, nil)
	gw.QueueStructured("A", map[string]any{"n": 3}, nil)

	ctx := context.Background()
	raw, err := gw.ChatStructured(ctx, modelgateway.StructuredRequest{SchemaName: "A"})
	if err != nil {
		t.Fatalf("ChatStructured: %v", err)
	}
	if string(raw) != `{"n":1}` {
		t.Fatalf("expected first A response, got %s", raw)
	}

	raw, err = gw.ChatStructured(ctx, modelgateway.StructuredRequest{SchemaName: "B"})
	if err != nil || string(raw) != `{"n":2}` {
		t.Fatalf("expected B response, got %s, err %v", raw, err)
	}

	raw, err = gw.ChatStructured(ctx, modelgateway.StructuredRequest{SchemaName: "A"})
	if err != nil || string(raw) != `{"n":3}` {
		t.Fatalf("expected second A response, got %s, err %v", raw, err)
	}
}

func TestGateway_ChatStructured_ScriptedError(t *testing.T) {
	gw := New()
	wantErr := errors.New("boom")
	gw.QueueStructured("C", nil, wantErr)

	_, err := gw.ChatStructured(context.Background(), modelgateway.StructuredRequest{SchemaName: "C"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected scripted error to propagate, got %v", err)
	}
}

func TestGateway_ChatStructured_FallsBackToDefault(t *testing.T) {
	gw := New()
	gw.DefaultStructured = func(ctx context.Context, req modelgateway.StructuredRequest) (json.RawMessage, error) {
		return json.RawMessage(`{"from":"default"}`), nil
	}
	raw, err := gw.ChatStructured(context.Background(), modelgateway.StructuredRequest{SchemaName: "D"})
	if err != nil {
		t.Fatalf("ChatStructured: %v", err)
	}
	if string(raw) != `{"from":"default"}` {
		t.Fatalf("expected default handler's payload, got %s", raw)
	}
}
