// Package google adapts Gemini models to the provider.Provider contract,
// grounded on the chunk-range streaming loop of the teacher's
// pkg/llm/google package.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"google.golang.org/genai"

	"github.com/arcweave/agentcore/pkg/conversation"
	"github.com/arcweave/agentcore/pkg/errkind"
	"github.com/arcweave/agentcore/pkg/provider"
)

// EnvAPIKey is the environment variable Authenticate reads from.
const EnvAPIKey = "GEMINI_API_KEY"

// Provider adapts Gemini's GenerateContentStream API.
type Provider struct {
	mu     sync.Mutex
	client *genai.Client
	ready  bool
}

// New builds an unauthenticated Provider.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string { return "google" }

func (p *Provider) ListModels() []provider.ModelDescriptor {
	return []provider.ModelDescriptor{
		{ID: "gemini-2.5-pro", Provider: "google", ContextWindow: 1_048_576, SupportsThinking: true},
		{ID: "gemini-2.5-flash", Provider: "google", ContextWindow: 1_048_576, SupportsThinking: true},
	}
}

func (p *Provider) Authenticate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := os.Getenv(EnvAPIKey)
	if key == "" {
		return errkind.New(errkind.Auth, fmt.Errorf("google: %s not set", EnvAPIKey))
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return errkind.New(errkind.Transport, err)
	}
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

func (p *Provider) CountTokens(ctx context.Context, req provider.Request) (int64, error) {
	var chars int64
	for _, m := range req.Messages {
		for _, seg := range m.Segments {
			chars += int64(len(seg.Text))
		}
	}
	return chars / 4, nil
}

func toGenaiRole(role conversation.Role) genai.Role {
	if role == conversation.RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func buildContents(req provider.Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == conversation.RoleSystem {
			continue
		}
		var parts []*genai.Part
		if m.Role == conversation.RoleTool {
			var result map[string]any
			_ = json.Unmarshal([]byte(segmentsToText(m.Segments)), &result)
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     m.ToolUseID,
					Response: result,
				},
			})
		} else {
			parts = append(parts, genai.NewPartFromText(segmentsToText(m.Segments)))
		}
		contents = append(contents, genai.NewContentFromParts(parts, toGenaiRole(m.Role)))
	}
	return contents
}

func segmentsToText(segments []conversation.MessageSegment) string {
	var out string
	for _, seg := range segments {
		out += seg.Text
	}
	return out
}

func buildTools(decls []provider.ToolDeclaration) []*genai.Tool {
	if len(decls) == 0 {
		return nil
	}
	fns := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		var schema genai.Schema
		_ = json.Unmarshal(d.Schema, &schema)
		fns = append(fns, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  &schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: fns}}
}

// Stream ranges over GenerateContentStream's iterator, translating each
// chunk into provider.StreamEvent, grounded on processMessageExchange's
// chunk-range loop in the teacher.
func (p *Provider) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	if err := p.ensureClient(ctx); err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(1.0)),
		Tools:       buildTools(req.Tools),
	}
	if req.ThinkingBudget > 0 {
		config.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(int32(req.ThinkingBudget)),
		}
	}

	contents := buildContents(req)
	out := make(chan provider.StreamEvent, 16)

	go func() {
		defer close(out)

		callCounter := 0
		for chunk, err := range p.client.Models.GenerateContentStream(ctx, req.Model, contents, config) {
			if ctx.Err() != nil {
				out <- provider.StreamEvent{Kind: provider.EventStop, StopReason: provider.StopError, StopErr: errkind.New(errkind.Canceled, ctx.Err())}
				return
			}
			if err != nil {
				out <- provider.StreamEvent{Kind: provider.EventStop, StopReason: provider.StopError, StopErr: classifyErr(err)}
				return
			}
			if len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil {
				continue
			}

			for _, part := range chunk.Candidates[0].Content.Parts {
				switch {
				case part.Text != "" && part.Thought:
					out <- provider.StreamEvent{Kind: provider.EventThinkingDelta, Thinking: part.Text}
				case part.Text != "":
					out <- provider.StreamEvent{Kind: provider.EventTextDelta, Text: part.Text}
				case part.FunctionCall != nil:
					callCounter++
					id := fmt.Sprintf("call_%d", callCounter)
					args, _ := json.Marshal(part.FunctionCall.Args)
					out <- provider.StreamEvent{Kind: provider.EventToolUseStart, ToolUseID: id, ToolName: part.FunctionCall.Name}
					out <- provider.StreamEvent{Kind: provider.EventToolUseArgsDelta, ToolUseID: id, JSONFragment: string(args)}
					out <- provider.StreamEvent{Kind: provider.EventToolUseEnd, ToolUseID: id}
				}
			}

			if chunk.UsageMetadata != nil {
				out <- provider.StreamEvent{
					Kind: provider.EventUsageUpdate,
					Usage: conversation.TokenUsage{
						Input:     uint64(chunk.UsageMetadata.PromptTokenCount),
						Output:    uint64(chunk.UsageMetadata.CandidatesTokenCount),
						CacheRead: uint64(chunk.UsageMetadata.CachedContentTokenCount),
					},
				}
			}
		}

		stop := provider.StopEndTurn
		if callCounter > 0 {
			stop = provider.StopToolUse
		}
		out <- provider.StreamEvent{Kind: provider.EventStop, StopReason: stop}
	}()

	return out, nil
}

// classifyErr maps a genai.APIError onto the shared failure taxonomy.
func classifyErr(err error) error {
	if ae, ok := asAPIError(err); ok {
		switch ae.Code {
		case 401, 403:
			return errkind.New(errkind.Auth, err)
		case 429:
			return errkind.NewRateLimited(err, 0)
		case 503, 529:
			return errkind.New(errkind.Overloaded, err)
		case 400:
			return errkind.New(errkind.InvalidRequest, err)
		}
	}
	return errkind.New(errkind.Transport, err)
}

func asAPIError(err error) (*genai.APIError, bool) {
	ae, ok := err.(*genai.APIError)
	return ae, ok
}
