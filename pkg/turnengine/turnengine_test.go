package turnengine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcweave/agentcore/pkg/actionlog"
	"github.com/arcweave/agentcore/pkg/config"
	"github.com/arcweave/agentcore/pkg/conversation"
	"github.com/arcweave/agentcore/pkg/provider"
	"github.com/arcweave/agentcore/pkg/tool"
)

type fakeProvider struct {
	scripts [][]provider.StreamEvent
	call    int
}

func (p *fakeProvider) Name() string { return "fake" }
func (p *fakeProvider) ListModels() []provider.ModelDescriptor {
	return []provider.ModelDescriptor{{ID: "fake-model", ContextWindow: 1_000_000}}
}
func (p *fakeProvider) Authenticate(ctx context.Context) error      { return nil }
func (p *fakeProvider) ResetCredentials(ctx context.Context) error  { return nil }
func (p *fakeProvider) CountTokens(ctx context.Context, req provider.Request) (int64, error) {
	return 10, nil
}
func (p *fakeProvider) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	script := p.scripts[p.call]
	p.call++
	ch := make(chan provider.StreamEvent, len(script))
	for _, ev := range script {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

type fakeTool struct {
	name     string
	needsConfirm bool
	output   string
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Kind() tool.Kind      { return tool.KindExecute }
func (t *fakeTool) InputSchema() json.RawMessage { return json.RawMessage(`{}`) }
func (t *fakeTool) NeedsConfirmation(input json.RawMessage, app tool.AppContext) bool {
	return t.needsConfirm
}
func (t *fakeTool) InitialTitle(inputOrErr json.RawMessage) string { return t.name }
func (t *fakeTool) Run(ctx context.Context, input json.RawMessage, events chan<- tool.Event) (json.RawMessage, error) {
	return json.RawMessage(t.output), nil
}

type fakeAppCtx struct{ alwaysAllow bool }

func (a fakeAppCtx) AlwaysAllowToolActions() bool { return a.alwaysAllow }

func newTestConfig() *config.Config {
	return &config.Config{
		Provider:  "fake",
		Model:     "fake-model",
		MaxTokens: 1024,
		LoopCap:   16,
		Retry:     config.DefaultRetryConfig,
	}
}

func drain(ch chan TurnEvent) []TurnEvent {
	var out []TurnEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestSubmitSimpleTextTurnReachesDone(t *testing.T) {
	conv := conversation.New("")
	log := actionlog.New()
	reg := tool.NewRegistry()
	fp := &fakeProvider{
		scripts: [][]provider.StreamEvent{
			{
				{Kind: provider.EventTextDelta, Text: "hello"},
				{Kind: provider.EventStop, StopReason: provider.StopEndTurn},
			},
		},
	}
	engine := New(conv, log, reg, map[string]provider.Provider{"fake": fp}, newTestConfig(), fakeAppCtx{})

	out := make(chan TurnEvent, 32)
	engine.Submit(context.Background(), "hi", out)
	events := drain(out)

	require.NotEmpty(t, events)
	assert.Equal(t, StateDone, engine.State())

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
	assert.Equal(t, conversation.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hello", msgs[1].Segments[0].Text)
}

func TestSubmitToolUseLoopsAndAppendsToolResult(t *testing.T) {
	conv := conversation.New("")
	log := actionlog.New()
	reg := tool.NewRegistry()
	reg.Register(&fakeTool{name: "echo", output: `{"ok":true}`})

	fp := &fakeProvider{
		scripts: [][]provider.StreamEvent{
			{
				{Kind: provider.EventToolUseStart, ToolUseID: "call_1", ToolName: "echo"},
				{Kind: provider.EventToolUseArgsDelta, ToolUseID: "call_1", JSONFragment: `{}`},
				{Kind: provider.EventToolUseEnd, ToolUseID: "call_1"},
				{Kind: provider.EventStop, StopReason: provider.StopToolUse},
			},
			{
				{Kind: provider.EventTextDelta, Text: "done"},
				{Kind: provider.EventStop, StopReason: provider.StopEndTurn},
			},
		},
	}
	engine := New(conv, log, reg, map[string]provider.Provider{"fake": fp}, newTestConfig(), fakeAppCtx{alwaysAllow: true})

	out := make(chan TurnEvent, 32)
	engine.Submit(context.Background(), "run echo", out)
	_ = drain(out)

	assert.Equal(t, StateDone, engine.State())

	var sawToolMessage bool
	for _, m := range conv.Messages() {
		if m.Role == conversation.RoleTool && m.ToolUseID == "call_1" {
			sawToolMessage = true
			assert.False(t, m.IsError)
		}
	}
	assert.True(t, sawToolMessage)
}

func TestSubmitLoopCapFailsTurn(t *testing.T) {
	conv := conversation.New("")
	log := actionlog.New()
	reg := tool.NewRegistry()
	reg.Register(&fakeTool{name: "echo", output: `{}`})

	scripts := make([][]provider.StreamEvent, 0, 20)
	for i := 0; i < 20; i++ {
		scripts = append(scripts, []provider.StreamEvent{
			{Kind: provider.EventToolUseStart, ToolUseID: "call", ToolName: "echo"},
			{Kind: provider.EventToolUseArgsDelta, ToolUseID: "call", JSONFragment: `{}`},
			{Kind: provider.EventToolUseEnd, ToolUseID: "call"},
			{Kind: provider.EventStop, StopReason: provider.StopToolUse},
		})
	}
	fp := &fakeProvider{scripts: scripts}

	cfg := newTestConfig()
	cfg.LoopCap = 2
	engine := New(conv, log, reg, map[string]provider.Provider{"fake": fp}, cfg, fakeAppCtx{alwaysAllow: true})

	out := make(chan TurnEvent, 256)
	engine.Submit(context.Background(), "loop", out)
	events := drain(out)

	assert.Equal(t, StateFailed, engine.State())

	var sawLoopCapErr bool
	for _, ev := range events {
		if ev.Kind == "state" && ev.State == StateFailed && ev.Err != nil {
			sawLoopCapErr = true
		}
	}
	assert.True(t, sawLoopCapErr)
}

func TestSubmitCancellationStopsCleanly(t *testing.T) {
	conv := conversation.New("")
	log := actionlog.New()
	reg := tool.NewRegistry()
	fp := &fakeProvider{scripts: [][]provider.StreamEvent{{}}}
	engine := New(conv, log, reg, map[string]provider.Provider{"fake": fp}, newTestConfig(), fakeAppCtx{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan TurnEvent, 8)
	engine.Submit(ctx, "hi", out)
	_ = drain(out)

	assert.Equal(t, StateCanceled, engine.State())
}

func TestElideKeepsSystemAndLastN(t *testing.T) {
	var messages []conversation.ProviderMessage
	messages = append(messages, conversation.ProviderMessage{Role: conversation.RoleSystem})
	for i := 0; i < 20; i++ {
		messages = append(messages, conversation.ProviderMessage{Role: conversation.RoleUser})
	}

	out := elide(messages, 4)
	assert.Equal(t, conversation.RoleSystem, out[0].Role)
	assert.Len(t, out, 5)
}
