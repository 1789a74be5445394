// Package provider defines the uniform streaming interface over LLM
// providers (component C4 of the orchestration core). Concrete adapters
// live in the anthropic, openai, and google subpackages; this package
// holds only the wire-agnostic contract.
package provider

import (
	"context"
	"encoding/json"

	"github.com/arcweave/agentcore/pkg/conversation"
)

// ModelDescriptor describes one selectable model.
type ModelDescriptor struct {
	ID               string
	Provider         string
	ContextWindow    int
	SupportsThinking bool
}

// ToolChoice hints how the model should use declared tools.
type ToolChoice struct {
	Mode string // "auto", "required", "none", "specific"
	Name string // only meaningful when Mode == "specific"
}

// ToolDeclaration is the schema a request advertises for one tool.
type ToolDeclaration struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Request is the provider-agnostic shape of one completion request
// (spec §4.4 "Request shape").
type Request struct {
	Model              string
	Messages           []conversation.ProviderMessage
	Tools              []ToolDeclaration
	ToolChoice         *ToolChoice
	Temperature        *float64
	MaxOutputTokens    int
	ParallelToolCalls  bool
	ThinkingBudget     int
}

// StopReason classifies why a stream ended.
type StopReason string

const (
	StopEndTurn  StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
	StopToolUse  StopReason = "tool_use"
	StopError    StopReason = "error"
)

// EventKind tags a StreamEvent's variant.
type EventKind int

const (
	EventTextDelta EventKind = iota
	EventThinkingDelta
	EventRedactedThinking
	EventToolUseStart
	EventToolUseArgsDelta
	EventToolUseEnd
	EventUsageUpdate
	EventStop
)

// StreamEvent is the tagged union produced by Provider.Stream (spec
// §4.4 "StreamEvent variants"). Only the fields relevant to Kind are
// populated.
type StreamEvent struct {
	Kind EventKind

	// EventTextDelta
	Text string
	// EventThinkingDelta
	Thinking  string
	Signature *string
	// EventRedactedThinking
	Redacted []byte
	// EventToolUseStart / EventToolUseArgsDelta / EventToolUseEnd
	ToolUseID   string
	ToolName    string
	JSONFragment string
	// EventUsageUpdate
	Usage conversation.TokenUsage
	// EventStop
	StopReason StopReason
	StopErr    error
}

// Provider is the uniform interface over all supported LLM providers
// (spec §4.4).
type Provider interface {
	Name() string
	ListModels() []ModelDescriptor
	Authenticate(ctx context.Context) error
	ResetCredentials(ctx context.Context) error
	// CountTokens is a best-effort estimator used to gate requests before
	// they are sent.
	CountTokens(ctx context.Context, req Request) (int64, error)
	// Stream is the primary interface: it returns a channel of events
	// terminated by exactly one EventStop (preceded by zero or more
	// EventUsageUpdate), or an error if the stream could not be opened.
	// Closing ctx cancels the stream (spec §6.1 "Cancellation by closing
	// the stream").
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}
