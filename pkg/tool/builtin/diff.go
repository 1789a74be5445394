package builtin

import "github.com/aymanbagabas/go-udiff"

// unifiedDiffSummary renders the before/after of a single edit as a
// unified diff for the advisory event stream, using the same diff
// library actionlog.TrackedBuffer.Diff uses for the reviewer-facing view.
func unifiedDiffSummary(path, before, after string) string {
	return udiff.Unified(path, path, before, after)
}
