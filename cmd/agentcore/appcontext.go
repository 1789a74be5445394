package main

// cliAppContext adapts a snapshot of the always-allow flag to
// tool.AppContext for the lifetime of one command invocation.
type cliAppContext struct {
	alwaysAllow bool
}

func (c cliAppContext) AlwaysAllowToolActions() bool { return c.alwaysAllow }
