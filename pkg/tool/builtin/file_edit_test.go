package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcweave/agentcore/pkg/actionlog"
)

func TestFileEditToolReplacesUniqueOccurrence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world\n"), 0o644))

	log := actionlog.New()
	et := NewFileEditTool(log)

	in, err := json.Marshal(FileEditInput{FilePath: path, OldText: "world", NewText: "there"})
	require.NoError(t, err)

	out, err := et.Run(context.Background(), in, nil)
	require.NoError(t, err)

	updated, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello there\n", string(updated))

	var result struct {
		ReplacedCount int    `json:"replaced_count"`
		EditID        string `json:"edit_id"`
	}
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, 1, result.ReplacedCount)
	assert.NotEmpty(t, result.EditID)
}

func TestFileEditToolRejectsAmbiguousOldTextWithoutReplaceAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("foo foo\n"), 0o644))

	et := NewFileEditTool(actionlog.New())
	in, err := json.Marshal(FileEditInput{FilePath: path, OldText: "foo", NewText: "bar"})
	require.NoError(t, err)

	_, err = et.Run(context.Background(), in, nil)
	assert.Error(t, err)
}

func TestFileEditToolReplaceAllReplacesEveryOccurrence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("foo foo foo\n"), 0o644))

	et := NewFileEditTool(actionlog.New())
	in, err := json.Marshal(FileEditInput{FilePath: path, OldText: "foo", NewText: "bar", ReplaceAll: true})
	require.NoError(t, err)

	out, err := et.Run(context.Background(), in, nil)
	require.NoError(t, err)

	updated, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bar bar bar\n", string(updated))

	var result struct {
		ReplacedCount int `json:"replaced_count"`
	}
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, 3, result.ReplacedCount)
}

func TestFileEditToolMarksBufferPendingInActionLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("x\n"), 0o644))

	log := actionlog.New()
	log.BufferRead(fileBuffer{path: path})
	et := NewFileEditTool(log)

	in, err := json.Marshal(FileEditInput{FilePath: path, OldText: "x", NewText: "y"})
	require.NoError(t, err)
	_, err = et.Run(context.Background(), in, nil)
	require.NoError(t, err)

	unreviewed := log.UnreviewedBuffers()
	tb, ok := unreviewed[path]
	require.True(t, ok)
	assert.Len(t, tb.UnreviewedEditIDs(), 1)
}

func TestFileEditToolNeedsConfirmationUnlessAlwaysAllowed(t *testing.T) {
	et := NewFileEditTool(actionlog.New())
	assert.True(t, et.NeedsConfirmation(nil, nil))
	assert.True(t, et.NeedsConfirmation(nil, allowNothing{}))
	assert.False(t, et.NeedsConfirmation(nil, allowAll{}))
}

type allowAll struct{}

func (allowAll) AlwaysAllowToolActions() bool { return true }

type allowNothing struct{}

func (allowNothing) AlwaysAllowToolActions() bool { return false }
