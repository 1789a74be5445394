package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/pkg/errors"

	"github.com/arcweave/agentcore/pkg/osutil"
	"github.com/arcweave/agentcore/pkg/tool"
)

// maxBashOutputBytes caps captured stdout+stderr, mirroring file_read's
// output guard.
const maxBashOutputBytes = 100_000

const (
	minBashTimeoutSeconds = 10
	maxBashTimeoutSeconds = 120
)

// BashInput is the bash tool's input payload.
type BashInput struct {
	Description string `json:"description" jsonschema:"description=A short description of what the command does"`
	Command     string `json:"command" jsonschema:"description=The shell command to run"`
	Timeout     int    `json:"timeout" jsonschema:"description=Timeout for the command in seconds,default=30,minimum=10,maximum=120"`
}

// BashTool runs a shell command to completion (or until it times out or
// ctx is cancelled), returning its combined, truncated output. It kills
// the whole process group on timeout/cancellation so backgrounded
// children don't outlive the call, the way kodelet's BashTool does via
// osutil.SetProcessGroupKill.
type BashTool struct{}

// NewBashTool constructs a BashTool.
func NewBashTool() *BashTool { return &BashTool{} }

func (t *BashTool) Name() string    { return "bash" }
func (t *BashTool) Kind() tool.Kind { return tool.KindExecute }

func (t *BashTool) InputSchema() json.RawMessage {
	return mustSchemaJSON[BashInput]()
}

func (t *BashTool) NeedsConfirmation(_ json.RawMessage, app tool.AppContext) bool {
	return app == nil || !app.AlwaysAllowToolActions()
}

func (t *BashTool) InitialTitle(inputOrErr json.RawMessage) string {
	var in BashInput
	if err := json.Unmarshal(inputOrErr, &in); err != nil {
		return "Run command"
	}
	if in.Description != "" {
		return in.Description
	}
	return fmt.Sprintf("Run %s", in.Command)
}

func (t *BashTool) Run(ctx context.Context, input json.RawMessage, events chan<- tool.Event) (json.RawMessage, error) {
	var in BashInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, errors.Wrap(err, "bash: invalid input")
	}
	if in.Command == "" {
		return nil, errors.New("bash: command is required")
	}
	timeout := in.Timeout
	if timeout == 0 {
		timeout = 30
	} else if timeout < minBashTimeoutSeconds || timeout > maxBashTimeoutSeconds {
		timeout = maxBashTimeoutSeconds
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", in.Command)
	osutil.SetProcessGroup(cmd)
	osutil.SetProcessGroupKill(cmd)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if events != nil {
		events <- tool.Event{Content: []string{in.Description}}
	}

	runErr := cmd.Run()

	output := out.Bytes()
	if len(output) > maxBashOutputBytes {
		output = output[:maxBashOutputBytes]
	}

	result := struct {
		Output   string `json:"output"`
		ExitCode int    `json:"exit_code"`
	}{Output: string(output)}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, errors.Wrapf(runErr, "bash: failed to run command")
		}
	}

	return json.Marshal(result)
}
