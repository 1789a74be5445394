// Package tool implements the tool registry, per-invocation ToolCall
// state machine, and permission arbitration of component C3.
package tool

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// Kind categorizes a tool by purpose, informing UI presentation and
// coarse permission prompts (spec §4.3).
type Kind string

const (
	KindRead    Kind = "read"
	KindEdit    Kind = "edit"
	KindExecute Kind = "execute"
	KindThink   Kind = "think"
	KindOther   Kind = "other"
)

// AppContext is the ambient state a tool's NeedsConfirmation decision and
// Run invocation may consult: the global "always allow" switch plus
// whatever project/workspace handle a concrete deployment plugs in.
type AppContext interface {
	AlwaysAllowToolActions() bool
}

// Event is an advisory, incremental update posted to a tool call's event
// stream while it is in flight. Losing one does not affect correctness
// (spec §4.3).
type Event struct {
	Content   []string
	Locations []Location
	Diff      *string
}

// Location points the UI at a place in the workspace relevant to a tool
// update.
type Location struct {
	Path string
	Line *int
}

// Tool is the contract every registered tool implements.
type Tool interface {
	Name() string
	Kind() Kind
	// InputSchema returns the JSON schema describing the tool's Input.
	InputSchema() json.RawMessage
	// NeedsConfirmation may depend on the parsed input (e.g. path scope).
	NeedsConfirmation(input json.RawMessage, app AppContext) bool
	// InitialTitle renders the UI card header while the call is pending.
	// inputOrErr is the raw (possibly malformed) input JSON.
	InitialTitle(inputOrErr json.RawMessage) string
	// Run performs the work. It MUST honor ctx cancellation and may
	// stream advisory Events to events; events may be nil.
	Run(ctx context.Context, input json.RawMessage, events chan<- Event) (json.RawMessage, error)
}

// Registry resolves tool names to implementations.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t to the registry, keyed by its declared Name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get resolves a tool name.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, errors.Errorf("tool: no such tool %q", name)
	}
	return t, nil
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}
