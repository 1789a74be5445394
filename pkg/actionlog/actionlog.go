// Package actionlog tracks tool-originated buffer edits so a human can
// review them later, and detects buffers whose content has drifted since
// the model last saw them (component C2 of the orchestration core).
//
// The buffer/project layer is an external collaborator (spec §1
// Out-of-scope); actionlog consumes it only through the BufferRef
// interface below, which is intentionally the smallest surface a real
// buffer type needs to satisfy.
package actionlog

import (
	"sync"

	"github.com/aymanbagabas/go-udiff"
)

// BufferRef is the minimal view of a project buffer the ActionLog needs.
// Implementations are held without preventing the buffer's own lifecycle
// decisions — the ActionLog purges entries for buffers it can no longer
// observe rather than keeping them alive (spec §3 "weak reference
// semantics").
type BufferRef interface {
	// ID is a stable identifier for the buffer (e.g. its path), used as
	// the ActionLog's internal map key since Go has no first-class weak
	// reference type to key a map by identity with.
	ID() string
	// Version increases monotonically every time the buffer's content
	// changes, however the change originated.
	Version() int
	// Text returns the buffer's current content.
	Text() string
}

// EditID identifies a single tool-originated edit operation, supplied by
// the caller (the project layer owns edit-id allocation).
type EditID string

// pendingEdit pairs an edit id with the buffer text immediately after it
// was applied. Chaining these lets MarkReviewed advance the baseline to
// exactly the text that preceded the next still-unreviewed edit, matching
// the Rust source's branch-and-undo result without needing an
// operation-keyed undo primitive in Go.
type pendingEdit struct {
	id        EditID
	textAfter string
}

// TrackedBuffer is the per-buffer record of unreviewed tool edits and the
// diff handle used to present them.
type TrackedBuffer struct {
	buffer BufferRef

	baselineText   string
	baselineVersion int
	pending        []pendingEdit
}

// UnreviewedEditIDs returns the ordered list of edit ids awaiting review.
func (t *TrackedBuffer) UnreviewedEditIDs() []EditID {
	ids := make([]EditID, len(t.pending))
	for i, p := range t.pending {
		ids[i] = p.id
	}
	return ids
}

// Buffer returns the tracked buffer reference.
func (t *TrackedBuffer) Buffer() BufferRef { return t.buffer }

// Diff renders a unified diff between the baseline (state before the
// unreviewed edits) and the buffer's current text.
func (t *TrackedBuffer) Diff() string {
	path := t.buffer.ID()
	return udiff.Unified(path, path, t.baselineText, t.buffer.Text())
}

// BaselineText exposes the diff's base text, primarily for tests
// asserting the diff-stability invariant of spec §8 scenario 6.
func (t *TrackedBuffer) BaselineText() string { return t.baselineText }

// ActionLog is the scheduler-owned store of TrackedBuffers plus the
// stale-context set. It is safe to call from the scheduler thread only
// for mutation; UnreviewedBuffers/StaleBuffers return snapshots safe to
// hand to other goroutines (spec §5 "reads are allowed from any thread
// via snapshotting").
type ActionLog struct {
	mu                   sync.Mutex
	trackedBuffers       map[string]*TrackedBuffer
	staleBuffersInContext map[string]BufferRef
}

// New creates an empty ActionLog.
func New() *ActionLog {
	return &ActionLog{
		trackedBuffers:        make(map[string]*TrackedBuffer),
		staleBuffersInContext: make(map[string]BufferRef),
	}
}

// trackLocked returns the TrackedBuffer for buf, creating it (with a
// baseline mirroring the buffer's current content) if this is the first
// time the buffer is observed, and in all cases records the version the
// ActionLog has now seen — so StaleBuffers only reports drift that
// happened *outside* of BufferRead/BufferEdited calls. Must be called
// with mu held.
func (l *ActionLog) trackLocked(buf BufferRef) *TrackedBuffer {
	tb, ok := l.trackedBuffers[buf.ID()]
	if !ok {
		tb = &TrackedBuffer{
			buffer:       buf,
			baselineText: buf.Text(),
		}
		l.trackedBuffers[buf.ID()] = tb
	}
	tb.buffer = buf
	tb.baselineVersion = buf.Version()
	return tb
}

// BufferRead begins tracking buf with an empty unreviewed-edit list and a
// baseline branch mirroring the current buffer (spec §4.2).
func (l *ActionLog) BufferRead(buf BufferRef) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trackLocked(buf)
}

// BufferEdited records that buf was mutated by a tool, producing editID
// and leaving the buffer at its new current text. It appends editID to
// the unreviewed list, marks the buffer stale-in-context, and keeps the
// diff's base fixed at the pre-edit baseline (spec §4.2 algorithm).
func (l *ActionLog) BufferEdited(buf BufferRef, editID EditID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.staleBuffersInContext[buf.ID()] = buf

	tb := l.trackLocked(buf)
	tb.pending = append(tb.pending, pendingEdit{id: editID, textAfter: buf.Text()})
}

// MarkReviewed advances the baseline past editID: the diff's base becomes
// the text that existed immediately after editID was applied, and editID
// (and any edits before it in the ordered list) are permanently removed
// from the unreviewed set (spec §3 invariant: "once an edit id is moved
// to reviewed it is removed from unreviewed_edit_ids forever").
func (l *ActionLog) MarkReviewed(bufID string, editID EditID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	tb, ok := l.trackedBuffers[bufID]
	if !ok {
		return false
	}
	for i, p := range tb.pending {
		if p.id == editID {
			tb.baselineText = p.textAfter
			tb.pending = tb.pending[i+1:]
			return true
		}
	}
	return false
}

// UnreviewedBuffers returns a snapshot of every TrackedBuffer with a
// non-empty unreviewed list, keyed by buffer id.
func (l *ActionLog) UnreviewedBuffers() map[string]*TrackedBuffer {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]*TrackedBuffer)
	for id, tb := range l.trackedBuffers {
		if len(tb.pending) > 0 {
			cp := *tb
			cp.pending = append([]pendingEdit(nil), tb.pending...)
			out[id] = &cp
		}
	}
	return out
}

// StaleBuffers returns the buffers whose current version differs from
// the version last observed by the ActionLog.
func (l *ActionLog) StaleBuffers() []BufferRef {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []BufferRef
	for _, tb := range l.trackedBuffers {
		if tb.buffer.Version() != tb.baselineVersion {
			out = append(out, tb.buffer)
		}
	}
	return out
}

// TakeStaleBuffersInContext atomically returns and clears the
// stale-context set, used to build the next request's "these files
// changed" notice.
func (l *ActionLog) TakeStaleBuffersInContext() []BufferRef {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]BufferRef, 0, len(l.staleBuffersInContext))
	for _, buf := range l.staleBuffersInContext {
		out = append(out, buf)
	}
	l.staleBuffersInContext = make(map[string]BufferRef)
	return out
}

// Purge drops the TrackedBuffer for a buffer the project has dropped; no
// error is surfaced (spec §4.2 Failure).
func (l *ActionLog) Purge(bufID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.trackedBuffers, bufID)
	delete(l.staleBuffersInContext, bufID)
}
