package builtin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/arcweave/agentcore/pkg/actionlog"
	"github.com/arcweave/agentcore/pkg/tool"
)

// maxReadBytes caps how much of a file file_read will return, mirroring
// the teacher's MaxOutputBytes guard against flooding the model context.
const maxReadBytes = 100_000

// FileReadInput is the file_read tool's input payload.
type FileReadInput struct {
	FilePath string `json:"file_path" jsonschema:"description=The absolute path of the file to read"`
	Offset   int    `json:"offset" jsonschema:"description=The 1-indexed line number to start reading from,default=1,minimum=1"`
}

// FileReadTool reads a file's contents, line-numbered from an offset, and
// records the read in an ActionLog so later drift can be detected.
type FileReadTool struct {
	log *actionlog.ActionLog
}

// NewFileReadTool constructs a FileReadTool that tracks reads in log.
func NewFileReadTool(log *actionlog.ActionLog) *FileReadTool {
	return &FileReadTool{log: log}
}

func (t *FileReadTool) Name() string       { return "file_read" }
func (t *FileReadTool) Kind() tool.Kind    { return tool.KindRead }
func (t *FileReadTool) InputSchema() json.RawMessage {
	return mustSchemaJSON[FileReadInput]()
}

func (t *FileReadTool) NeedsConfirmation(json.RawMessage, tool.AppContext) bool {
	return false
}

func (t *FileReadTool) InitialTitle(inputOrErr json.RawMessage) string {
	var in FileReadInput
	if err := json.Unmarshal(inputOrErr, &in); err != nil {
		return "Read file"
	}
	return fmt.Sprintf("Read %s", in.FilePath)
}

func (t *FileReadTool) Run(ctx context.Context, input json.RawMessage, _ chan<- tool.Event) (json.RawMessage, error) {
	var in FileReadInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, errors.Wrap(err, "file_read: invalid input")
	}
	if in.Offset < 1 {
		in.Offset = 1
	}

	f, err := os.Open(in.FilePath)
	if err != nil {
		return nil, errors.Wrapf(err, "file_read: failed to open %s", in.FilePath)
	}
	defer f.Close()

	var buf bytes.Buffer
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if lineNum < in.Offset {
			continue
		}
		if buf.Len() >= maxReadBytes {
			break
		}
		buf.WriteString(strconv.Itoa(lineNum))
		buf.WriteString("\t")
		buf.Write(scanner.Bytes())
		buf.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "file_read: failed to read %s", in.FilePath)
	}

	if t.log != nil {
		t.log.BufferRead(fileBuffer{path: in.FilePath})
	}

	return json.Marshal(buf.String())
}
