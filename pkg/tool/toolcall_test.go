package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArbitrateAlwaysAllowShortcuts(t *testing.T) {
	tc := &ToolCall{}
	tc.Arbitrate(true, true)
	assert.Equal(t, StatusAllowed, tc.Status)
}

func TestArbitrateNoConfirmationNeeded(t *testing.T) {
	tc := &ToolCall{}
	tc.Arbitrate(false, false)
	assert.Equal(t, StatusAllowed, tc.Status)
}

func TestArbitrateRequiresConfirmation(t *testing.T) {
	tc := &ToolCall{}
	tc.Arbitrate(false, true)
	assert.Equal(t, StatusWaitingForConfirmation, tc.Status)
}

func TestResolveRejectCancels(t *testing.T) {
	tc := &ToolCall{Status: StatusWaitingForConfirmation}
	tc.Resolve(OutcomeSelected, OptionReject.ID)
	assert.Equal(t, StatusCanceled, tc.Status)
}

func TestResolveDismissedCancels(t *testing.T) {
	tc := &ToolCall{Status: StatusWaitingForConfirmation}
	tc.Resolve(OutcomeDismissed, "")
	assert.Equal(t, StatusCanceled, tc.Status)
}

func TestResolveAllowOnceAllows(t *testing.T) {
	tc := &ToolCall{Status: StatusWaitingForConfirmation}
	tc.Resolve(OutcomeSelected, OptionAllowOnce.ID)
	assert.Equal(t, StatusAllowed, tc.Status)
}

func TestParseInputRejectsTruncatedJSON(t *testing.T) {
	tc := &ToolCall{InputJSON: `{"path":`}
	_, err := tc.ParseInput()
	assert.Error(t, err)
}

func TestParseInputAcceptsCompleteJSON(t *testing.T) {
	tc := &ToolCall{InputJSON: `{"path":"a.txt"}`}
	raw, err := tc.ParseInput()
	assert.NoError(t, err)
	assert.JSONEq(t, `{"path":"a.txt"}`, string(raw))
}

func TestFinishSetsTerminalState(t *testing.T) {
	tc := &ToolCall{Status: StatusAllowed}
	tc.Finish([]byte(`"ok"`), nil)
	assert.True(t, tc.IsTerminal())
	assert.Equal(t, StatusFinished, tc.Status)
}
