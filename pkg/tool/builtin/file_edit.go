package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/arcweave/agentcore/pkg/actionlog"
	"github.com/arcweave/agentcore/pkg/tool"
)

// FileEditInput is the file_edit tool's input payload.
type FileEditInput struct {
	FilePath   string `json:"file_path" jsonschema:"description=The absolute path of the file to edit"`
	OldText    string `json:"old_text" jsonschema:"description=The text to be replaced"`
	NewText    string `json:"new_text" jsonschema:"description=The text to replace the old text with"`
	ReplaceAll bool   `json:"replace_all" jsonschema:"description=If true replace every occurrence of old_text; if false old_text must be unique,default=false"`
}

// FileEditTool replaces old_text with new_text in a file, requiring an
// exact, unique match unless ReplaceAll is set. Every successful edit is
// recorded against an ActionLog so a human reviewer can later diff what a
// tool call changed (spec §4.2).
type FileEditTool struct {
	log *actionlog.ActionLog

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileEditTool constructs a FileEditTool that records edits in log.
func NewFileEditTool(log *actionlog.ActionLog) *FileEditTool {
	return &FileEditTool{log: log, locks: make(map[string]*sync.Mutex)}
}

func (t *FileEditTool) Name() string    { return "file_edit" }
func (t *FileEditTool) Kind() tool.Kind { return tool.KindEdit }

func (t *FileEditTool) InputSchema() json.RawMessage {
	return mustSchemaJSON[FileEditInput]()
}

// NeedsConfirmation always requires confirmation unless the app has
// switched on "always allow" — an edit is never purely advisory.
func (t *FileEditTool) NeedsConfirmation(_ json.RawMessage, app tool.AppContext) bool {
	return app == nil || !app.AlwaysAllowToolActions()
}

func (t *FileEditTool) InitialTitle(inputOrErr json.RawMessage) string {
	var in FileEditInput
	if err := json.Unmarshal(inputOrErr, &in); err != nil {
		return "Edit file"
	}
	return fmt.Sprintf("Edit %s", in.FilePath)
}

// fileLock returns the path-scoped mutex used to serialize read-modify-
// write edits to the same file, mirroring state.LockFile/UnlockFile in
// the teacher without requiring a shared project-state type.
func (t *FileEditTool) fileLock(path string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[path]
	if !ok {
		l = &sync.Mutex{}
		t.locks[path] = l
	}
	return l
}

func (t *FileEditTool) Run(_ context.Context, input json.RawMessage, events chan<- tool.Event) (json.RawMessage, error) {
	var in FileEditInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, errors.Wrap(err, "file_edit: invalid input")
	}

	lock := t.fileLock(in.FilePath)
	lock.Lock()
	defer lock.Unlock()

	content, err := os.ReadFile(in.FilePath)
	if err != nil {
		return nil, errors.Wrapf(err, "file_edit: failed to read %s", in.FilePath)
	}
	original := string(content)

	occurrences := strings.Count(original, in.OldText)
	if occurrences == 0 {
		return nil, errors.Errorf("file_edit: old_text not found in %s", in.FilePath)
	}
	if !in.ReplaceAll && occurrences > 1 {
		return nil, errors.Errorf("file_edit: old_text appears %d times in %s, set replace_all or make it unique", occurrences, in.FilePath)
	}

	var updated string
	var replaced int
	if in.ReplaceAll {
		updated = strings.ReplaceAll(original, in.OldText, in.NewText)
		replaced = occurrences
	} else {
		updated = strings.Replace(original, in.OldText, in.NewText, 1)
		replaced = 1
	}

	buf := fileBuffer{path: in.FilePath}
	if t.log != nil {
		// Track the file before writing so a file not yet seen by the
		// ActionLog gets its pre-edit text as the diff baseline.
		t.log.BufferRead(buf)
	}

	if err := os.WriteFile(in.FilePath, []byte(updated), 0o644); err != nil {
		return nil, errors.Wrapf(err, "file_edit: failed to write %s", in.FilePath)
	}

	editID := actionlog.EditID(uuid.NewString())
	if t.log != nil {
		t.log.BufferEdited(buf, editID)
	}

	if events != nil {
		diff := unifiedDiffSummary(in.FilePath, original, updated)
		events <- tool.Event{Diff: &diff, Locations: []tool.Location{{Path: in.FilePath}}}
	}

	result := struct {
		FilePath      string `json:"file_path"`
		ReplacedCount int    `json:"replaced_count"`
		EditID        string `json:"edit_id"`
	}{FilePath: in.FilePath, ReplacedCount: replaced, EditID: string(editID)}
	return json.Marshal(result)
}
