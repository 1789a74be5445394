// Package turnengine drives one user turn from submission to a terminal
// state, coordinating the Conversation, ActionLog, ToolRegistry, and
// ProviderGateway components (component C5 of the orchestration core).
//
// The concurrent tool-dispatch shape is grounded on the teacher's
// executeToolsParallel in pkg/llm/anthropic/anthropic.go: an errgroup of
// per-call goroutines feeding a buffered result channel, drained by a
// single consumer goroutine. Unlike the teacher — which preserves original
// submission order when writing results back — this engine appends
// Tool-role messages in completion order, since the engine's ordering
// guarantee only requires a tool result to follow the assistant message
// that declared it, not to follow sibling tool results in submission
// order.
package turnengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/arcweave/agentcore/pkg/actionlog"
	"github.com/arcweave/agentcore/pkg/config"
	"github.com/arcweave/agentcore/pkg/conversation"
	"github.com/arcweave/agentcore/pkg/errkind"
	"github.com/arcweave/agentcore/pkg/logger"
	"github.com/arcweave/agentcore/pkg/provider"
	"github.com/arcweave/agentcore/pkg/tool"
)

// State is the TurnEngine's state machine position (spec §4.5).
type State string

const (
	StateIdle             State = "idle"
	StateBuildingRequest  State = "building_request"
	StateAwaitingStream   State = "awaiting_stream"
	StateStreaming        State = "streaming"
	StateWaitingForTools  State = "waiting_for_tools"
	StateDone             State = "done"
	StateFailed           State = "failed"
	StateCanceled         State = "canceled"
)

// keepLastN is the number of most recent messages the elision policy
// always retains, regardless of role (spec §4.5 "Request envelope size").
const keepLastN = 8

// TurnEvent is the engine's outward-facing notification stream, the
// analogue of the teacher's llmtypes.MessageHandler but expressed as
// values on a channel rather than interface callbacks, to match this
// package's channel-oriented idiom elsewhere.
type TurnEvent struct {
	Kind       string // "text_delta", "thinking_delta", "tool_use", "tool_result", "state", "usage"
	Text       string
	ToolName   string
	ToolUseID  string
	Output     string
	IsError    bool
	State      State
	Err        error
}

// Engine runs turns for exactly one Conversation/ActionLog pair.
type Engine struct {
	conv      *conversation.Conversation
	log       *actionlog.ActionLog
	registry  *tool.Registry
	providers map[string]provider.Provider
	cfg       *config.Config
	appCtx    tool.AppContext

	mu    sync.Mutex
	state State

	// lastTurnCalls holds the ToolCalls produced by the most recent
	// consumeStream call, for runStream to filter into the pending set.
	// Submit drives at most one stream at a time, so no lock is needed.
	lastTurnCalls []*tool.ToolCall
}

// New builds an Engine. providers maps provider names (config.Provider*)
// to adapters; cfg.Provider selects which is used for this turn.
func New(conv *conversation.Conversation, log *actionlog.ActionLog, registry *tool.Registry, providers map[string]provider.Provider, cfg *config.Config, appCtx tool.AppContext) *Engine {
	return &Engine{
		conv:      conv,
		log:       log,
		registry:  registry,
		providers: providers,
		cfg:       cfg,
		appCtx:    appCtx,
		state:     StateIdle,
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// State reports the engine's current position in the state machine.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Submit drives one full user turn: it inserts userText as a User message,
// then loops BuildingRequest → AwaitingStream → Streaming →
// WaitingForTools until Stop{EndTurn} with no pending tools, the loop cap
// is hit, or ctx is canceled. Events are pushed to out; out is closed when
// the turn reaches a terminal state.
func (e *Engine) Submit(ctx context.Context, userText string, out chan<- TurnEvent) {
	defer close(out)

	e.conv.RotatePrompt()
	e.conv.InsertMessage(conversation.RoleUser, []conversation.MessageSegment{conversation.TextSegment(userText)}, nil, nil)

	prov, ok := e.providers[e.cfg.Provider]
	if !ok {
		e.fail(out, errors.Errorf("turnengine: no provider registered for %q", e.cfg.Provider))
		return
	}

	loopCap := e.cfg.LoopCap
	if loopCap <= 0 {
		loopCap = 16
	}

	for iteration := 0; ; iteration++ {
		if ctx.Err() != nil {
			e.setState(StateCanceled)
			out <- TurnEvent{Kind: "state", State: StateCanceled}
			return
		}
		if iteration >= loopCap {
			e.fail(out, errkind.New(errkind.LoopCap, errors.New("turn exceeded tool-loop iteration cap")))
			return
		}

		e.setState(StateBuildingRequest)
		out <- TurnEvent{Kind: "state", State: StateBuildingRequest}

		req, err := e.buildRequest(ctx, prov)
		if err != nil {
			e.fail(out, err)
			return
		}

		e.setState(StateAwaitingStream)
		out <- TurnEvent{Kind: "state", State: StateAwaitingStream}

		stop, pendingTools, err := e.runStream(ctx, prov, req, out)
		if err != nil {
			if errkind.Classify(err) == errkind.Canceled {
				e.setState(StateCanceled)
				out <- TurnEvent{Kind: "state", State: StateCanceled}
				return
			}
			e.fail(out, err)
			return
		}

		if len(pendingTools) > 0 {
			e.setState(StateWaitingForTools)
			out <- TurnEvent{Kind: "state", State: StateWaitingForTools}
			if err := e.resolveAndRunTools(ctx, pendingTools, out); err != nil {
				e.setState(StateCanceled)
				out <- TurnEvent{Kind: "state", State: StateCanceled}
				return
			}
			continue
		}

		if stop == provider.StopEndTurn {
			e.setState(StateDone)
			out <- TurnEvent{Kind: "state", State: StateDone}
			return
		}
		// Calls that failed arbitration (unknown tool, invalid input) already
		// have an is_error Tool message; let the model react to it.
		answered := false
		for _, tc := range e.lastTurnCalls {
			if tc.Status == tool.StatusFailed {
				answered = true
			}
		}
		if stop == provider.StopToolUse && answered {
			continue
		}
		// Stop reason was ToolUse but no call ran or was answered (the
		// stream produced no ToolUseEnd events, or every call is left
		// WaitingForConfirmation) — treat as end of turn rather than spin.
		e.setState(StateDone)
		out <- TurnEvent{Kind: "state", State: StateDone}
		return
	}
}

func (e *Engine) fail(out chan<- TurnEvent, err error) {
	e.setState(StateFailed)
	out <- TurnEvent{Kind: "state", State: StateFailed, Err: err}
}

// buildRequest renders the Conversation into a provider.Request, folding in
// any stale-buffer notice from the ActionLog, and applies the elision
// policy if the rendered envelope overflows the model's context window.
func (e *Engine) buildRequest(ctx context.Context, prov provider.Provider) (provider.Request, error) {
	messages := e.conv.ToModelMessages()

	if stale := e.log.TakeStaleBuffersInContext(); len(stale) > 0 {
		names := make([]string, 0, len(stale))
		for _, buf := range stale {
			names = append(names, buf.ID())
		}
		notice := fmt.Sprintf("The following files changed on disk since last seen: %v", names)
		messages = append(messages, conversation.ProviderMessage{
			Role:     conversation.RoleSystem,
			Segments: []conversation.MessageSegment{conversation.TextSegment(notice)},
		})
	}

	req := provider.Request{
		Model:           e.cfg.Model,
		Messages:        messages,
		MaxOutputTokens: e.cfg.MaxTokens,
		ThinkingBudget:  e.cfg.ThinkingBudgetTokens,
	}
	for _, name := range e.registry.Names() {
		t, _ := e.registry.Get(name)
		req.Tools = append(req.Tools, provider.ToolDeclaration{
			Name:        t.Name(),
			Description: t.InitialTitle(nil),
			Schema:      t.InputSchema(),
		})
	}

	count, err := prov.CountTokens(ctx, req)
	if err != nil {
		return req, errkind.New(errkind.Transport, err)
	}

	window := contextWindowFor(prov, e.cfg.Model)
	if window > 0 && count > int64(window) {
		req.Messages = elide(req.Messages, keepLastN)
		count, err = prov.CountTokens(ctx, req)
		if err != nil {
			return req, errkind.New(errkind.Transport, err)
		}
		if count > int64(window) {
			return req, errkind.New(errkind.ContextOverflow, errors.New("request envelope exceeds context window even after elision"))
		}
	}

	return req, nil
}

func contextWindowFor(prov provider.Provider, model string) int {
	for _, m := range prov.ListModels() {
		if m.ID == model {
			return m.ContextWindow
		}
	}
	return 0
}

// elide keeps the system messages and the last n messages and drops
// everything else. Older User and Tool messages are not kept together
// with the Assistant message they answer, so the kept tail can begin with
// a Tool message whose Assistant message was dropped.
func elide(messages []conversation.ProviderMessage, n int) []conversation.ProviderMessage {
	if len(messages) <= n {
		return messages
	}

	keep := make([]bool, len(messages))
	for i, m := range messages {
		if m.Role == conversation.RoleSystem {
			keep[i] = true
		}
	}
	for i := len(messages) - n; i < len(messages); i++ {
		if i >= 0 {
			keep[i] = true
		}
	}

	out := make([]conversation.ProviderMessage, 0, len(messages))
	for i, m := range messages {
		if keep[i] {
			out = append(out, m)
		}
	}
	return out
}

// runStream opens the provider stream and drives the Streaming state,
// returning the terminal stop reason and any tool calls left Allowed but
// not yet run.
func (e *Engine) runStream(ctx context.Context, prov provider.Provider, req provider.Request, out chan<- TurnEvent) (provider.StopReason, []*tool.ToolCall, error) {
	var stopErr error
	var stop provider.StopReason

	retryErr := retry.Do(
		func() error {
			events, err := prov.Stream(ctx, req)
			if err != nil {
				return err
			}

			e.setState(StateStreaming)
			out <- TurnEvent{Kind: "state", State: StateStreaming}

			s := e.consumeStream(ctx, events, out)
			stop = s.stop
			stopErr = s.err
			return s.err
		},
		retry.RetryIf(func(err error) bool {
			kind := errkind.Classify(err)
			return kind == errkind.RateLimited || kind == errkind.Transport || kind == errkind.Overloaded
		}),
		retry.Attempts(uint(e.cfg.Retry.Attempts)),
		retry.Delay(time.Duration(e.cfg.Retry.InitialDelay)*time.Millisecond),
		retry.MaxDelay(time.Duration(e.cfg.Retry.MaxDelay)*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n).Warn("retrying provider stream")
		}),
	)
	if retryErr != nil {
		return "", nil, retryErr
	}
	if stopErr != nil {
		return "", nil, stopErr
	}

	var pending []*tool.ToolCall
	for _, pc := range e.lastTurnCalls {
		if pc.Status == tool.StatusAllowed {
			pending = append(pending, pc)
		}
	}
	return stop, pending, nil
}

type streamResult struct {
	stop provider.StopReason
	err  error
}

// consumeStream drains one provider stream, applying the per-event rules
// of spec §4.5, allocating the single assistant message for this call on
// its first content-bearing event.
func (e *Engine) consumeStream(ctx context.Context, events <-chan provider.StreamEvent, out chan<- TurnEvent) streamResult {
	var assistantID conversation.MessageID
	var haveAssistant bool
	calls := make(map[string]*tool.ToolCall)
	e.lastTurnCalls = nil

	ensureAssistant := func() conversation.MessageID {
		if !haveAssistant {
			assistantID = e.conv.InsertMessage(conversation.RoleAssistant, nil, nil, nil)
			haveAssistant = true
		}
		return assistantID
	}

	var usage conversation.TokenUsage
	var stop provider.StopReason

	for ev := range events {
		if ctx.Err() != nil {
			return streamResult{err: errkind.New(errkind.Canceled, ctx.Err())}
		}

		switch ev.Kind {
		case provider.EventTextDelta:
			id := ensureAssistant()
			_ = e.conv.AppendText(id, ev.Text)
			out <- TurnEvent{Kind: "text_delta", Text: ev.Text}

		case provider.EventThinkingDelta:
			id := ensureAssistant()
			_ = e.conv.AppendThinking(id, ev.Thinking, ev.Signature)
			out <- TurnEvent{Kind: "thinking_delta", Text: ev.Thinking}

		case provider.EventRedactedThinking:
			id := ensureAssistant()
			_ = e.conv.AppendRedactedThinking(id, ev.Redacted)

		case provider.EventToolUseStart:
			ensureAssistant()
			calls[ev.ToolUseID] = &tool.ToolCall{ID: ev.ToolUseID, Name: ev.ToolName, Status: tool.StatusPending}
			out <- TurnEvent{Kind: "tool_use", ToolUseID: ev.ToolUseID, ToolName: ev.ToolName}

		case provider.EventToolUseArgsDelta:
			if tc, ok := calls[ev.ToolUseID]; ok {
				tc.AppendInputDelta(ev.JSONFragment)
			}

		case provider.EventToolUseEnd:
			tc, ok := calls[ev.ToolUseID]
			if !ok {
				continue
			}
			e.arbitrate(tc)

		case provider.EventUsageUpdate:
			usage = usage.Add(ev.Usage)

		case provider.EventStop:
			stop = ev.StopReason
			if ev.StopReason == provider.StopError {
				return streamResult{err: ev.StopErr}
			}
		}
	}

	e.conv.UpdateTokenUsage(usage)
	out <- TurnEvent{Kind: "usage"}

	for _, tc := range calls {
		e.lastTurnCalls = append(e.lastTurnCalls, tc)
	}

	return streamResult{stop: stop}
}

// arbitrate resolves a freshly-ended ToolCall's starting status: a
// malformed input argument buffer fails the call immediately without
// invoking the tool (spec §4.5 "Tool argument buffering"); otherwise the
// registry's NeedsConfirmation decision is consulted (spec §4.3 step 1-2).
func (e *Engine) arbitrate(tc *tool.ToolCall) {
	input, err := tc.ParseInput()
	if err != nil {
		tc.Status = tool.StatusFailed
		tc.Err = "invalid tool input JSON"
		e.conv.InsertToolMessage(tc.ID, `{"error":"invalid tool input JSON"}`, true)
		return
	}

	t, err := e.registry.Get(tc.Name)
	if err != nil {
		tc.Status = tool.StatusFailed
		tc.Err = err.Error()
		e.conv.InsertToolMessage(tc.ID, fmt.Sprintf(`{"error":%q}`, err.Error()), true)
		return
	}

	needsConfirmation := t.NeedsConfirmation(input, e.appCtx)
	tc.Arbitrate(e.appCtx.AlwaysAllowToolActions(), needsConfirmation)
}

// ResolveConfirmation applies a user permission decision to tc by setting
// its status. Submit does not wait for confirmations: a call still
// WaitingForConfirmation when its stream ends is not run, and a call
// resolved here afterwards is not picked up by Submit.
func (e *Engine) ResolveConfirmation(tc *tool.ToolCall, outcome, optionID string) {
	tc.Resolve(outcome, optionID)
}

// resolveAndRunTools executes every Allowed ToolCall concurrently,
// appending Tool-role messages to the Conversation in completion order as
// each finishes (see package doc for the divergence from the teacher's
// submission-order behavior).
func (e *Engine) resolveAndRunTools(ctx context.Context, calls []*tool.ToolCall, out chan<- TurnEvent) error {
	type result struct {
		tc     *tool.ToolCall
		output json.RawMessage
		err    error
	}

	resultCh := make(chan result, len(calls))
	g, gctx := errgroup.WithContext(ctx)

	for _, tc := range calls {
		tc := tc
		if tc.Status != tool.StatusAllowed {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t, err := e.registry.Get(tc.Name)
			if err != nil {
				select {
				case resultCh <- result{tc: tc, err: err}:
				case <-gctx.Done():
					return gctx.Err()
				}
				return nil
			}
			input, _ := tc.ParseInput()
			timeout := e.cfg.ToolTimeout
			if timeout <= 0 {
				timeout = 120 * time.Second
			}
			runCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			output, runErr := t.Run(runCtx, input, nil)
			select {
			case resultCh <- result{tc: tc, output: output, err: runErr}:
			case <-gctx.Done():
				return gctx.Err()
			}
			return nil
		})
	}

	var consumerWg sync.WaitGroup
	consumerWg.Add(1)
	go func() {
		defer consumerWg.Done()
		for r := range resultCh {
			r.tc.Finish(r.output, r.err)
			content := string(r.output)
			isError := r.err != nil
			if isError {
				content = fmt.Sprintf(`{"error":%q}`, r.err.Error())
			}
			e.conv.InsertToolMessage(r.tc.ID, content, isError)
			out <- TurnEvent{Kind: "tool_result", ToolUseID: r.tc.ID, ToolName: r.tc.Name, Output: content, IsError: isError}
		}
	}()

	err := g.Wait()
	close(resultCh)
	consumerWg.Wait()

	for _, tc := range calls {
		if tc.Status == tool.StatusWaitingForConfirmation {
			tc.Cancel()
		}
	}

	return err
}
