// Package openai adapts OpenAI-compatible chat completion models to the
// provider.Provider contract, grounded on the stream-accumulation loop of
// the teacher's pkg/llm/openai package.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sashabaranov/go-openai"

	"github.com/arcweave/agentcore/pkg/conversation"
	agenterrkind "github.com/arcweave/agentcore/pkg/errkind"
	"github.com/arcweave/agentcore/pkg/logger"
	"github.com/arcweave/agentcore/pkg/provider"
)

// EnvAPIKey is the environment variable Authenticate reads from.
const EnvAPIKey = "OPENAI_API_KEY"

// Provider adapts OpenAI's streaming chat completions API.
type Provider struct {
	mu        sync.Mutex
	client    *openai.Client
	ready     bool
	maxRetries uint
}

// New builds an unauthenticated Provider.
func New() *Provider {
	return &Provider{maxRetries: 3}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) ListModels() []provider.ModelDescriptor {
	return []provider.ModelDescriptor{
		{ID: "gpt-5", Provider: "openai", ContextWindow: 272_000, SupportsThinking: true},
		{ID: "gpt-5-mini", Provider: "openai", ContextWindow: 272_000, SupportsThinking: true},
		{ID: "o3", Provider: "openai", ContextWindow: 200_000, SupportsThinking: true},
	}
}

func (p *Provider) Authenticate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := os.Getenv(EnvAPIKey)
	if key == "" {
		return errors.New("openai: OPENAI_API_KEY not set")
	}
	client := openai.NewClient(key)
	p.client = client
	p.ready = true
	return nil
}

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

// CountTokens is a character-based heuristic; go-openai does not bundle a
// tokenizer.
func (p *Provider) CountTokens(ctx context.Context, req provider.Request) (int64, error) {
	var chars int64
	for _, m := range req.Messages {
		for _, seg := range m.Segments {
			chars += int64(len(seg.Text))
		}
	}
	return chars / 4, nil
}

func toChatRole(role conversation.Role) string {
	switch role {
	case conversation.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case conversation.RoleSystem:
		return openai.ChatMessageRoleSystem
	case conversation.RoleTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}

func buildRequest(req provider.Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:    toChatRole(m.Role),
			Content: segmentsToText(m.Segments),
		}
		if m.Role == conversation.RoleTool {
			msg.ToolCallID = m.ToolUseID
		}
		messages = append(messages, msg)
	}

	tools := make([]openai.Tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		var params map[string]any
		_ = json.Unmarshal(t.Schema, &params)
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}

	return openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Tools:    tools,
	}
}

func segmentsToText(segments []conversation.MessageSegment) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(seg.Text)
	}
	return b.String()
}

// Stream opens a streaming chat completion. The blocking SDK loop runs in
// a goroutine (grounded on createStreamingChatCompletion in the teacher),
// translating deltas into provider.StreamEvent as they arrive rather than
// accumulating into a synthetic response first.
func (p *Provider) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	if err := p.ensureClient(ctx); err != nil {
		return nil, err
	}

	params := buildRequest(req)
	params.Stream = true
	params.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	out := make(chan provider.StreamEvent, 16)

	go func() {
		defer close(out)

		var stream *openai.ChatCompletionStream
		err := retry.Do(
			func() error {
				s, err := p.client.CreateChatCompletionStream(ctx, params)
				if err != nil {
					return err
				}
				stream = s
				return nil
			},
			retry.RetryIf(func(err error) bool { return agenterrkind.IsRetryable(classifyErr(err)) }),
			retry.Attempts(p.maxRetries),
			retry.Delay(500*time.Millisecond),
			retry.DelayType(retry.BackOffDelay),
			retry.MaxDelay(10*time.Second),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, err error) {
				logger.G(ctx).WithError(err).WithField("attempt", n).Warn("retrying openai stream open")
			}),
		)
		if err != nil {
			out <- provider.StreamEvent{Kind: provider.EventStop, StopReason: provider.StopError, StopErr: classifyErr(err)}
			return
		}
		defer stream.Close()

		toolByIndex := map[int]*openai.ToolCall{}
		var finishReason openai.FinishReason
		var usage openai.Usage

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, context.Canceled) {
				out <- provider.StreamEvent{Kind: provider.EventStop, StopReason: provider.StopError, StopErr: agenterrkind.New(agenterrkind.Canceled, err)}
				return
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				out <- provider.StreamEvent{Kind: provider.EventStop, StopReason: provider.StopError, StopErr: classifyErr(err)}
				return
			}

			if chunk.Usage != nil {
				usage = *chunk.Usage
			}

			for _, choice := range chunk.Choices {
				delta := choice.Delta
				if delta.Content != "" {
					out <- provider.StreamEvent{Kind: provider.EventTextDelta, Text: delta.Content}
				}
				if delta.ReasoningContent != "" {
					out <- provider.StreamEvent{Kind: provider.EventThinkingDelta, Thinking: delta.ReasoningContent}
				}
				for _, tc := range delta.ToolCalls {
					if tc.Index == nil {
						continue
					}
					idx := *tc.Index
					existing, ok := toolByIndex[idx]
					if !ok {
						existing = &openai.ToolCall{}
						toolByIndex[idx] = existing
						if tc.ID != "" {
							existing.ID = tc.ID
						}
						if tc.Function.Name != "" {
							existing.Function.Name = tc.Function.Name
						}
						out <- provider.StreamEvent{Kind: provider.EventToolUseStart, ToolUseID: tc.ID, ToolName: tc.Function.Name}
					}
					if tc.Function.Arguments != "" {
						out <- provider.StreamEvent{Kind: provider.EventToolUseArgsDelta, ToolUseID: existing.ID, JSONFragment: tc.Function.Arguments}
					}
				}
				if choice.FinishReason != "" {
					finishReason = choice.FinishReason
				}
			}
		}

		for _, tc := range toolByIndex {
			out <- provider.StreamEvent{Kind: provider.EventToolUseEnd, ToolUseID: tc.ID}
		}

		out <- provider.StreamEvent{
			Kind: provider.EventUsageUpdate,
			Usage: conversation.TokenUsage{
				Input:  uint64(usage.PromptTokens),
				Output: uint64(usage.CompletionTokens),
			},
		}
		out <- provider.StreamEvent{Kind: provider.EventStop, StopReason: stopReasonFromOpenAI(finishReason)}
	}()

	return out, nil
}

func stopReasonFromOpenAI(reason openai.FinishReason) provider.StopReason {
	switch reason {
	case openai.FinishReasonToolCalls:
		return provider.StopToolUse
	case openai.FinishReasonLength:
		return provider.StopMaxTokens
	default:
		return provider.StopEndTurn
	}
}

// classifyErr maps a go-openai error onto the shared failure taxonomy by
// HTTP status code.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return agenterrkind.New(agenterrkind.Auth, err)
		case 429:
			return agenterrkind.NewRateLimited(err, 0)
		case 503, 529:
			return agenterrkind.New(agenterrkind.Overloaded, err)
		case 400:
			return agenterrkind.New(agenterrkind.InvalidRequest, err)
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return agenterrkind.New(agenterrkind.Transport, err)
	}
	return agenterrkind.New(agenterrkind.Transport, err)
}
