// Package anthropic adapts Anthropic's Claude models to the
// provider.Provider contract, grounded on the streaming-accumulation
// pattern of the teacher's pkg/llm/anthropic package.
package anthropic

import (
	"context"
	"os"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	"github.com/arcweave/agentcore/pkg/conversation"
	"github.com/arcweave/agentcore/pkg/errkind"
	"github.com/arcweave/agentcore/pkg/logger"
	"github.com/arcweave/agentcore/pkg/provider"
)

// EnvAPIKey is the environment variable Authenticate reads from, per spec
// §6.4 ("named environment variables per provider").
const EnvAPIKey = "ANTHROPIC_API_KEY"

// Provider adapts Anthropic's streaming Messages API.
type Provider struct {
	mu     sync.Mutex
	client anthropic.Client
	ready  bool
}

// New builds an unauthenticated Provider; call Authenticate (or let the
// first Stream call do so lazily from the environment) before use.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) ListModels() []provider.ModelDescriptor {
	return []provider.ModelDescriptor{
		{ID: "claude-sonnet-4-5", Provider: "anthropic", ContextWindow: 200_000, SupportsThinking: true},
		{ID: "claude-opus-4-1", Provider: "anthropic", ContextWindow: 200_000, SupportsThinking: true},
		{ID: "claude-haiku-4-5", Provider: "anthropic", ContextWindow: 200_000, SupportsThinking: false},
	}
}

// Authenticate populates credentials from the environment (spec §4.4:
// "providers may also read from process environment").
func (p *Provider) Authenticate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := os.Getenv(EnvAPIKey)
	if key == "" {
		return errors.New("anthropic: ANTHROPIC_API_KEY not set")
	}
	p.client = anthropic.NewClient(option.WithAPIKey(key))
	p.ready = true
	return nil
}

// ResetCredentials drops the cached client so the next call re-reads the
// environment.
func (p *Provider) ResetCredentials(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = false
	return nil
}

func (p *Provider) ensureClient(ctx context.Context) error {
	p.mu.Lock()
	ready := p.ready
	p.mu.Unlock()
	if ready {
		return nil
	}
	return p.Authenticate(ctx)
}

// CountTokens is a best-effort heuristic (spec §9: "the source
// approximates by heuristics" for providers without a tokenizer SDK) —
// roughly 4 characters per token, summed over every text-bearing
// segment.
func (p *Provider) CountTokens(ctx context.Context, req provider.Request) (int64, error) {
	var chars int64
	for _, m := range req.Messages {
		for _, seg := range m.Segments {
			chars += int64(len(seg.Text))
		}
	}
	return chars / 4, nil
}

func toAnthropicRole(role conversation.Role) anthropic.MessageParamRole {
	if role == conversation.RoleAssistant {
		return anthropic.MessageParamRoleAssistant
	}
	return anthropic.MessageParamRoleUser
}

// buildParams renders the provider-agnostic Request into Anthropic's wire
// params, the way processMessageExchange does in the teacher.
func buildParams(req provider.Request) anthropic.MessageNewParams {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == conversation.RoleSystem {
			continue
		}
		var blocks []anthropic.ContentBlockParamUnion
		if m.Role == conversation.RoleTool {
			blocks = append(blocks, anthropic.NewToolResultBlock(m.ToolUseID, segmentsToText(m.Segments), m.IsError))
		} else {
			for _, seg := range m.Segments {
				switch seg.Kind {
				case conversation.SegmentText:
					blocks = append(blocks, anthropic.NewTextBlock(seg.Text))
				}
			}
		}
		messages = append(messages, anthropic.MessageParam{
			Role:    toAnthropicRole(m.Role),
			Content: blocks,
		})
	}

	tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{},
			},
		})
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxOutputTokens),
		Messages:  messages,
		Tools:     tools,
	}
	if req.ThinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamUnion{
			OfEnabled: &anthropic.ThinkingConfigEnabledParam{
				Type:         "enabled",
				BudgetTokens: int64(req.ThinkingBudget),
			},
		}
	}
	return params
}

func segmentsToText(segments []conversation.MessageSegment) string {
	var out string
	for _, seg := range segments {
		out += seg.Text
	}
	return out
}

// Stream opens a streaming completion and translates Anthropic's SSE
// events into provider.StreamEvent, preserving the per-tool-use ordering
// guarantee of spec §4.4 (ContentBlockStart → zero-or-more deltas →
// ContentBlockStop maps onto ToolUseStart → ToolUseArgsDelta* →
// ToolUseEnd).
func (p *Provider) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	if err := p.ensureClient(ctx); err != nil {
		return nil, err
	}

	params := buildParams(req)
	out := make(chan provider.StreamEvent, 16)

	go func() {
		defer close(out)

		log := logger.G(ctx).WithField("model", req.Model)
		stream := p.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		message := anthropic.Message{}
		// toolBlockIndex maps a content-block index to the ToolUseId
		// Anthropic assigned it, since ContentBlockDeltaEvent only
		// carries the index, not the id.
		toolBlockIndex := make(map[int64]string)

		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				log.WithError(err).Error("error accumulating anthropic message")
				continue
			}

			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				switch block := variant.ContentBlock.AsAny().(type) {
				case anthropic.ToolUseBlock:
					toolBlockIndex[variant.Index] = block.ID
					out <- provider.StreamEvent{Kind: provider.EventToolUseStart, ToolUseID: block.ID, ToolName: block.Name}
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := variant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					out <- provider.StreamEvent{Kind: provider.EventTextDelta, Text: delta.Text}
				case anthropic.ThinkingDelta:
					out <- provider.StreamEvent{Kind: provider.EventThinkingDelta, Thinking: delta.Thinking}
				case anthropic.InputJSONDelta:
					if id, ok := toolBlockIndex[variant.Index]; ok {
						out <- provider.StreamEvent{Kind: provider.EventToolUseArgsDelta, ToolUseID: id, JSONFragment: delta.PartialJSON}
					}
				}
			case anthropic.ContentBlockStopEvent:
				if id, ok := toolBlockIndex[variant.Index]; ok {
					out <- provider.StreamEvent{Kind: provider.EventToolUseEnd, ToolUseID: id}
					delete(toolBlockIndex, variant.Index)
				}
			}
		}

		if err := stream.Err(); err != nil {
			out <- provider.StreamEvent{Kind: provider.EventStop, StopReason: provider.StopError, StopErr: classifyErr(err)}
			return
		}

		out <- provider.StreamEvent{
			Kind: provider.EventUsageUpdate,
			Usage: conversation.TokenUsage{
				Input:         uint64(message.Usage.InputTokens),
				Output:        uint64(message.Usage.OutputTokens),
				CacheRead:     uint64(message.Usage.CacheReadInputTokens),
				CacheCreation: uint64(message.Usage.CacheCreationInputTokens),
			},
		}
		out <- provider.StreamEvent{Kind: provider.EventStop, StopReason: stopReasonFromAnthropic(message.StopReason)}
	}()

	return out, nil
}

// classifyErr maps an Anthropic SDK error onto the shared failure taxonomy
// (spec §7) by HTTP status code, the same boundary kodelet's callers use
// to decide whether to retry.
func classifyErr(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return errkind.New(errkind.Transport, err)
	}
	switch apiErr.StatusCode {
	case 401, 403:
		return errkind.New(errkind.Auth, err)
	case 429:
		return errkind.NewRateLimited(err, 0)
	case 529, 503:
		return errkind.New(errkind.Overloaded, err)
	case 400:
		return errkind.New(errkind.InvalidRequest, err)
	default:
		return errkind.New(errkind.Transport, err)
	}
}

func stopReasonFromAnthropic(reason anthropic.StopReason) provider.StopReason {
	switch reason {
	case anthropic.StopReasonToolUse:
		return provider.StopToolUse
	case anthropic.StopReasonMaxTokens:
		return provider.StopMaxTokens
	default:
		return provider.StopEndTurn
	}
}
