package builtin

import "os"

// fileBuffer adapts a path on disk to actionlog.BufferRef. Version uses
// the file's modification time so an edit made outside of file_edit (by
// the user, or another process) is reported by ActionLog.StaleBuffers
// until a tool next reads or edits the file, which records the new
// version as seen, matching the teacher's mtime
// drift check in FileEditTool.ValidateInput/Execute.
type fileBuffer struct {
	path string
}

func (f fileBuffer) ID() string { return f.path }

func (f fileBuffer) Version() int {
	info, err := os.Stat(f.path)
	if err != nil {
		return 0
	}
	return int(info.ModTime().UnixNano())
}

func (f fileBuffer) Text() string {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return ""
	}
	return string(b)
}
