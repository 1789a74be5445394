package builtin

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBashToolRunsCommandAndCapturesOutput(t *testing.T) {
	bt := NewBashTool()
	in, err := json.Marshal(BashInput{Description: "echo", Command: "echo hello", Timeout: 10})
	require.NoError(t, err)

	out, err := bt.Run(context.Background(), in, nil)
	require.NoError(t, err)

	var result struct {
		Output   string `json:"output"`
		ExitCode int    `json:"exit_code"`
	}
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Contains(t, result.Output, "hello")
	assert.Equal(t, 0, result.ExitCode)
}

func TestBashToolSurfacesNonZeroExitCode(t *testing.T) {
	bt := NewBashTool()
	in, err := json.Marshal(BashInput{Description: "fail", Command: "exit 3", Timeout: 10})
	require.NoError(t, err)

	out, err := bt.Run(context.Background(), in, nil)
	require.NoError(t, err)

	var result struct {
		ExitCode int `json:"exit_code"`
	}
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, 3, result.ExitCode)
}

func TestBashToolTimesOutLongRunningCommand(t *testing.T) {
	bt := NewBashTool()
	in, err := json.Marshal(BashInput{Description: "sleep", Command: "sleep 60", Timeout: 10})
	require.NoError(t, err)

	start := time.Now()
	_, err = bt.Run(context.Background(), in, nil)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 15*time.Second)
	_ = err
}

func TestBashToolRejectsEmptyCommand(t *testing.T) {
	bt := NewBashTool()
	in, err := json.Marshal(BashInput{Description: "noop", Command: "", Timeout: 10})
	require.NoError(t, err)

	_, err = bt.Run(context.Background(), in, nil)
	assert.Error(t, err)
}
