// Package fakegateway is the reference Model Gateway implementation: a
// deterministic, in-memory, table-driven stand-in for the live provider
// client the spec places out of scope (spec §1). It lets the cycle
// orchestrator, Actor, Adversary, and re-ranker run end-to-end, and lets
// tests script exact sequences (e.g. "first attempt fails, second
// succeeds") without a live API key.
package fakegateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/renbytes/uroboros/internal/modelgateway"
)

// ScriptedChat is one queued response to the next unstructured Chat call.
type ScriptedChat struct {
	Text string
	Err  error
}

// ScriptedStructured is one queued response to the next ChatStructured call
// for a given schema name.
type ScriptedStructured struct {
	Payload any // marshaled to JSON when popped, ignored if Err != nil
	Err     error
}

// Gateway is a scripted, in-memory modelgateway.Gateway. Zero value is
// usable; register expectations with QueueChat/QueueStructured before the
// call that should observe them (FIFO per schema name for structured calls,
// single FIFO queue for chat calls).
type Gateway struct {
	mu sync.Mutex

	chatQueue   []ScriptedChat
	structQueue map[string][]ScriptedStructured

	// DefaultChat/DefaultStructured are consulted once a queue for the
	// relevant key is exhausted. Both may be nil.
	DefaultChat       func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	DefaultStructured func(ctx context.Context, req modelgateway.StructuredRequest) (json.RawMessage, error)
}

// New returns an empty, ready-to-use fake Gateway.
func New() *Gateway {
	return &Gateway{structQueue: map[string][]ScriptedStructured{}}
}

// QueueChat appends a scripted response consumed by the next Chat call.
func (g *Gateway) QueueChat(text string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chatQueue = append(g.chatQueue, ScriptedChat{Text: text, Err: err})
}

// QueueStructured appends a scripted response consumed by the next
// ChatStructured call whose SchemaName equals schemaName.
func (g *Gateway) QueueStructured(schemaName string, payload any, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.structQueue[schemaName] = append(g.structQueue[schemaName], ScriptedStructured{Payload: payload, Err: err})
}

func (g *Gateway) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	g.mu.Lock()
	if len(g.chatQueue) > 0 {
		next := g.chatQueue[0]
		g.chatQueue = g.chatQueue[1:]
		g.mu.Unlock()
		return next.Text, next.Err
	}
	g.mu.Unlock()

	if g.DefaultChat != nil {
		return g.DefaultChat(ctx, systemPrompt, userPrompt)
	}
	return "", fmt.Errorf("fakegateway: no scripted chat response and no default handler")
}

func (g *Gateway) ChatStructured(ctx context.Context, req modelgateway.StructuredRequest) (json.RawMessage, error) {
	g.mu.Lock()
	q := g.structQueue[req.SchemaName]
	if len(q) > 0 {
		next := q[0]
		g.structQueue[req.SchemaName] = q[1:]
		g.mu.Unlock()
		if next.Err != nil {
			return nil, next.Err
		}
		raw, err := json.Marshal(next.Payload)
		if err != nil {
			return nil, fmt.Errorf("fakegateway: marshal scripted payload for %s: %w", req.SchemaName, err)
		}
		return raw, nil
	}
	g.mu.Unlock()

	if g.DefaultStructured != nil {
		return g.DefaultStructured(ctx, req)
	}
	return nil, fmt.Errorf("fakegateway: no scripted structured response for schema %q and no default handler", req.SchemaName)
}
