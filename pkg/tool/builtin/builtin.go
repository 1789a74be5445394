package builtin

import (
	"github.com/arcweave/agentcore/pkg/actionlog"
	"github.com/arcweave/agentcore/pkg/tool"
)

// Register adds file_read, file_edit, and bash to reg, wiring the file
// tools to log so edits and reads are tracked (spec §4.2).
func Register(reg *tool.Registry, log *actionlog.ActionLog) {
	reg.Register(NewFileReadTool(log))
	reg.Register(NewFileEditTool(log))
	reg.Register(NewBashTool())
}
