package tool

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Status is the ToolCall state machine of spec §3:
//
//	Pending → WaitingForConfirmation{options} → Allowed → (Finished | Failed | Canceled)
//
// with the shortcut Pending → Allowed when confirmation is not required.
type Status string

const (
	StatusPending               Status = "pending"
	StatusWaitingForConfirmation Status = "waiting_for_confirmation"
	StatusAllowed               Status = "allowed"
	StatusFinished              Status = "finished"
	StatusFailed                Status = "failed"
	StatusCanceled              Status = "canceled"
)

// PermissionOutcome values a confirmation resolves to.
const (
	OutcomeSelected  = "selected"
	OutcomeDismissed = "dismissed"
	OutcomeTimeout   = "timeout"
)

// PermissionOption is one of the choices presented to the user while a
// ToolCall is WaitingForConfirmation (spec §4.3 step 3: AllowOnce,
// AllowAlways, Reject).
type PermissionOption struct {
	ID        string
	Label     string
	Shortcut  string
	IsDefault bool
}

// Standard permission options for a tool requiring confirmation.
var (
	OptionAllowOnce   = PermissionOption{ID: "allow_once", Label: "Allow Once", Shortcut: "y"}
	OptionAllowAlways = PermissionOption{ID: "allow_always", Label: "Allow Always", Shortcut: "a"}
	OptionReject      = PermissionOption{ID: "reject", Label: "Reject", Shortcut: "n", IsDefault: true}
)

// DefaultConfirmationOptions is the option set spec §4.3 step 3 names.
func DefaultConfirmationOptions() []PermissionOption {
	return []PermissionOption{OptionAllowOnce, OptionAllowAlways, OptionReject}
}

// ToolCall is the per-invocation record for one provider-declared tool
// use. It is owned by the TurnEngine for the duration of the turn; at
// turn end its final state is flushed into the Conversation as a
// Tool-role message (spec §3 Lifecycle/ownership).
type ToolCall struct {
	ID        string // ToolUseId, opaque, supplied by the provider
	Name      string
	InputJSON string // accumulated via ToolUseArgsDelta, parsed on ToolUseEnd
	Status    Status

	ContentUpdates []Event
	Locations      []Location
	Diff           *string

	// Output/Err hold the terminal result once Status is Finished or
	// Failed.
	Output json.RawMessage
	Err    string
}

// AppendInputDelta concatenates an incremental JSON argument fragment
// (spec §4.4 ToolUseArgsDelta; fragments for one id are emitted in
// concatenation order).
func (tc *ToolCall) AppendInputDelta(fragment string) {
	tc.InputJSON += fragment
}

// ParseInput parses the accumulated InputJSON buffer. A parse failure
// means the engine must append an is_error Tool message without invoking
// the tool (spec §4.5 "Tool argument buffering").
func (tc *ToolCall) ParseInput() (json.RawMessage, error) {
	if !json.Valid([]byte(tc.InputJSON)) {
		return nil, errors.Errorf("tool call %s: invalid JSON input", tc.ID)
	}
	return json.RawMessage(tc.InputJSON), nil
}

// Arbitrate resolves the ToolCall's starting status per spec §4.3:
//  1. alwaysAllow set → Allowed.
//  2. !needsConfirmation → Allowed.
//  3. else → WaitingForConfirmation.
func (tc *ToolCall) Arbitrate(alwaysAllow, needsConfirmation bool) {
	if alwaysAllow || !needsConfirmation {
		tc.Status = StatusAllowed
		return
	}
	tc.Status = StatusWaitingForConfirmation
}

// Resolve applies a user's permission decision to a WaitingForConfirmation
// call. optionID "reject" (or a dismissed/timeout outcome) resolves to
// Canceled; any other recognized option resolves to Allowed.
func (tc *ToolCall) Resolve(outcome, optionID string) {
	if outcome != OutcomeSelected || optionID == OptionReject.ID {
		tc.Status = StatusCanceled
		return
	}
	tc.Status = StatusAllowed
}

// Finish marks the call Finished with output, or Failed with an error
// message, depending on err.
func (tc *ToolCall) Finish(output json.RawMessage, err error) {
	if err != nil {
		tc.Status = StatusFailed
		tc.Err = err.Error()
		return
	}
	tc.Status = StatusFinished
	tc.Output = output
}

// Cancel marks the call Canceled, used both for explicit user rejection
// and for turn-level cancellation tearing down in-flight calls (spec
// §4.5 Cancellation).
func (tc *ToolCall) Cancel() {
	tc.Status = StatusCanceled
}

// IsTerminal reports whether the call has reached one of its terminal
// states.
func (tc *ToolCall) IsTerminal() bool {
	switch tc.Status {
	case StatusFinished, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}
