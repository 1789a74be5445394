// Package historystore merges persisted conversations (C6) and external
// text threads into a single time-ordered history view, and maintains a
// bounded, debounce-persisted recently-opened queue. Grounded on
// original_source/crates/agent2/src/history_store.rs, translated from
// its entity/observer model into a mutex-guarded struct the way
// kodelet's ConversationService wraps its store behind a plain Go type.
package historystore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/arcweave/agentcore/pkg/logger"
	"github.com/arcweave/agentcore/pkg/store"
)

// MaxRecentEntries is the recently-opened queue cap (spec §4.7, §8).
const MaxRecentEntries = 6

// SaveDebounce coalesces recent-queue mutation bursts into one write.
const SaveDebounce = 50 * time.Millisecond

const defaultTitle = "New Thread"

// EntryKind distinguishes the two HistoryEntry variants.
type EntryKind string

const (
	EntryConversation EntryKind = "conversation"
	EntryTextThread   EntryKind = "text_thread"
)

// EntryID identifies a history entry. Exactly one of ConversationID or
// TextThreadPath is set, selected by Kind.
type EntryID struct {
	Kind           EntryKind
	ConversationID string
	TextThreadPath string
}

// Entry is one merged row of conversation or text-thread history.
type Entry struct {
	ID        EntryID
	Title     string
	UpdatedAt time.Time
}

// DisplayTitle renders an empty title as "New Thread" (spec §4.7).
func (e Entry) DisplayTitle() string {
	if e.Title == "" {
		return defaultTitle
	}
	return e.Title
}

// TextThreadMetadata describes one free-form text thread surfaced by an
// external TextThreadSource.
type TextThreadMetadata struct {
	Path    string
	Title   string
	ModTime time.Time
}

// TextThreadSource is the external document-store collaborator that
// supplies free-form text threads (spec's Out-of-scope "buffer/project
// layer" collaborator). A TextThreadSource may additionally implement
// TextThreadDeleter to support DeleteTextThread.
type TextThreadSource interface {
	TextThreads(ctx context.Context) ([]TextThreadMetadata, error)
}

// TextThreadDeleter is an optional capability of a TextThreadSource.
type TextThreadDeleter interface {
	DeleteTextThread(ctx context.Context, path string) error
}

// RecentQueueStore persists the serialized recently-opened queue under a
// single key, standing in for Zed's generic key-value store.
type RecentQueueStore interface {
	Save(data []byte) error
	Load() ([]byte, error)
}

// HistoryStore merges a ConversationStore's summaries with a
// TextThreadSource's entries into one time-ordered list, and tracks a
// bounded recently-opened queue.
type HistoryStore struct {
	mu sync.Mutex

	convStore  store.ConversationStore
	textSource TextThreadSource
	queueStore RecentQueueStore
	persist    bool

	entries []Entry
	recent  []EntryID

	saveTimer *time.Timer
}

// Option configures a HistoryStore.
type Option func(*HistoryStore)

// WithPersist controls whether the recently-opened queue is loaded from
// and saved to queueStore. Tests disable persistence the way
// original_source's test-support build skips the KEY_VALUE_STORE round
// trip.
func WithPersist(persist bool) Option {
	return func(h *HistoryStore) { h.persist = persist }
}

// New constructs a HistoryStore over convStore and textSource, persisting
// its recently-opened queue through queueStore unless WithPersist(false)
// is given.
func New(convStore store.ConversationStore, textSource TextThreadSource, queueStore RecentQueueStore, opts ...Option) *HistoryStore {
	h := &HistoryStore{
		convStore:  convStore,
		textSource: textSource,
		queueStore: queueStore,
		persist:    true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Load populates the recently-opened queue from persisted state (if
// persistence is enabled) and performs an initial Reload.
func (h *HistoryStore) Load(ctx context.Context) error {
	if h.persist {
		recent, err := h.loadRecentlyOpened()
		if err != nil {
			logger.G(ctx).WithError(err).Debug("historystore: failed to load recently-opened queue")
		} else {
			h.mu.Lock()
			h.recent = recent
			h.mu.Unlock()
		}
	}
	return h.Reload(ctx)
}

// Reload recomputes entries from both sources and atomically replaces
// the in-memory list (spec §4.7 "the reload path ... replaces entries
// atomically when it completes").
func (h *HistoryStore) Reload(ctx context.Context) error {
	summaries, err := h.convStore.List()
	if err != nil {
		return errors.Wrap(err, "historystore: failed to list conversations")
	}

	var textThreads []TextThreadMetadata
	if h.textSource != nil {
		textThreads, err = h.textSource.TextThreads(ctx)
		if err != nil {
			return errors.Wrap(err, "historystore: failed to list text threads")
		}
	}

	entries := make([]Entry, 0, len(summaries)+len(textThreads))
	for _, s := range summaries {
		entries = append(entries, Entry{
			ID:        EntryID{Kind: EntryConversation, ConversationID: s.ID},
			Title:     s.Title,
			UpdatedAt: s.UpdatedAt,
		})
	}
	for _, t := range textThreads {
		entries = append(entries, Entry{
			ID:        EntryID{Kind: EntryTextThread, TextThreadPath: t.Path},
			Title:     t.Title,
			UpdatedAt: t.ModTime,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].UpdatedAt.After(entries[j].UpdatedAt) })

	h.mu.Lock()
	h.entries = entries
	h.mu.Unlock()
	return nil
}

// Entries returns every merged entry, newest first.
func (h *HistoryStore) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// RecentlyOpened returns up to MaxRecentEntries entries, newest first,
// resolved against the current entry set. Ids whose backing entry no
// longer exists are silently dropped (mirrors the Rust source's
// lookup-and-filter behavior) without being removed from the queue.
func (h *HistoryStore) RecentlyOpened() []Entry {
	h.mu.Lock()
	recent := make([]EntryID, len(h.recent))
	copy(recent, h.recent)
	byID := make(map[EntryID]Entry, len(h.entries))
	for _, e := range h.entries {
		byID[e.ID] = e
	}
	h.mu.Unlock()

	out := make([]Entry, 0, len(recent))
	for _, id := range recent {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// PushRecent moves id to the front of the recently-opened queue,
// inserting it if absent, and truncates to MaxRecentEntries. Idempotent:
// pushing an id already at the front is a no-op write but still
// schedules the debounced save (matching the Rust source, which always
// re-saves on push).
func (h *HistoryStore) PushRecent(id EntryID) {
	h.mu.Lock()
	filtered := h.recent[:0:0]
	for _, old := range h.recent {
		if old != id {
			filtered = append(filtered, old)
		}
	}
	h.recent = append([]EntryID{id}, filtered...)
	if len(h.recent) > MaxRecentEntries {
		h.recent = h.recent[:MaxRecentEntries]
	}
	h.mu.Unlock()
	h.scheduleSave()
}

// RemoveRecent removes id from the recently-opened queue.
func (h *HistoryStore) RemoveRecent(id EntryID) {
	h.mu.Lock()
	filtered := h.recent[:0:0]
	for _, old := range h.recent {
		if old != id {
			filtered = append(filtered, old)
		}
	}
	h.recent = filtered
	h.mu.Unlock()
	h.scheduleSave()
}

// ReplaceRecentTextThread updates any recent-queue entry referencing
// oldPath in place, preserving its queue position (spec §4.7, supplement
// note on rename handling).
func (h *HistoryStore) ReplaceRecentTextThread(oldPath, newPath string) {
	h.mu.Lock()
	for i, id := range h.recent {
		if id.Kind == EntryTextThread && id.TextThreadPath == oldPath {
			h.recent[i] = EntryID{Kind: EntryTextThread, TextThreadPath: newPath}
			break
		}
	}
	h.mu.Unlock()
	h.scheduleSave()
}

// DeleteThread removes a conversation from the store and from the
// recently-opened queue.
func (h *HistoryStore) DeleteThread(ctx context.Context, conversationID string) error {
	if err := h.convStore.Delete(conversationID); err != nil {
		return errors.Wrap(err, "historystore: failed to delete conversation")
	}
	h.RemoveRecent(EntryID{Kind: EntryConversation, ConversationID: conversationID})
	return h.Reload(ctx)
}

// DeleteTextThread removes a text thread from its source (if the source
// supports deletion) and from the recently-opened queue.
func (h *HistoryStore) DeleteTextThread(ctx context.Context, path string) error {
	if deleter, ok := h.textSource.(TextThreadDeleter); ok {
		if err := deleter.DeleteTextThread(ctx, path); err != nil {
			return errors.Wrap(err, "historystore: failed to delete text thread")
		}
	}
	h.RemoveRecent(EntryID{Kind: EntryTextThread, TextThreadPath: path})
	return h.Reload(ctx)
}

func (h *HistoryStore) scheduleSave() {
	if !h.persist {
		return
	}
	h.mu.Lock()
	if h.saveTimer != nil {
		h.saveTimer.Stop()
	}
	h.saveTimer = time.AfterFunc(SaveDebounce, h.saveRecentlyOpenedNow)
	h.mu.Unlock()
}

func (h *HistoryStore) saveRecentlyOpenedNow() {
	h.mu.Lock()
	recent := make([]EntryID, len(h.recent))
	copy(recent, h.recent)
	h.mu.Unlock()

	data, err := serializeRecentlyOpened(recent)
	if err != nil {
		logger.G(context.Background()).WithError(err).Warn("historystore: failed to serialize recently-opened queue")
		return
	}
	if err := h.queueStore.Save(data); err != nil {
		logger.G(context.Background()).WithError(err).Warn("historystore: failed to persist recently-opened queue")
	}
}

func (h *HistoryStore) loadRecentlyOpened() ([]EntryID, error) {
	data, err := h.queueStore.Load()
	if err != nil {
		return nil, err
	}
	return deserializeRecentlyOpened(data)
}
