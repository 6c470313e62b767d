// ABOUTME: Registry of MCP tools keyed by name, preserving registration order.
// ABOUTME: Each tool carries its JSON schema and execution handler.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/insightfinder/mcp-server/internal/insightfinder"
)

// Progress is one intermediate update emitted by a streaming tool.
type Progress struct {
	Tool    string `json:"tool"`
	Stage   string `json:"stage"`
	Message string `json:"message,omitempty"`
}

// ProgressSink receives intermediate updates during a tool call. A nil
// sink means the caller did not ask for streaming; handlers may emit
// unconditionally, the dispatcher discards updates nobody listens for.
type ProgressSink func(Progress)

// Handler executes one tool call on behalf of the given tenant.
type Handler func(ctx context.Context, args json.RawMessage, tenant *insightfinder.Credential, progress ProgressSink) (any, error)

// Tool is one registered MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Streaming   bool
	Handler     Handler
}

// Registry holds the tool catalog. Registration happens once at
// startup; lookups are concurrent.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	order []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool, rejecting duplicates and incomplete entries.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every tool in registration order.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
