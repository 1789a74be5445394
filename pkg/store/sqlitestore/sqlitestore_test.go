package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcweave/agentcore/pkg/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "conversations.db")
	s, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleConversation(id string) store.SerializedConversation {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return store.SerializedConversation{
		Version:   store.CurrentVersion,
		ID:        id,
		Title:     "sample",
		CreatedAt: now,
		UpdatedAt: now,
		Messages: []store.SerializedMessage{
			{ID: 1, Role: "user", Segments: []store.SerializedSegment{{Kind: "text", Text: "hi"}}, Timestamp: now},
		},
		CumulativeUsage: store.SerializedTokenUsage{Input: 10, Output: 5},
	}
}

func TestSaveAndLoadRoundTrips(t *testing.T) {
	s := newTestStore(t)
	sc := sampleConversation("conv-1")

	require.NoError(t, s.Save(sc))

	loaded, err := s.Load("conv-1")
	require.NoError(t, err)
	assert.Equal(t, sc.Title, loaded.Title)
	assert.Equal(t, sc.Messages, loaded.Messages)
	assert.Equal(t, sc.CumulativeUsage, loaded.CumulativeUsage)
}

func TestSavePreservesCreatedAtAcrossUpdates(t *testing.T) {
	s := newTestStore(t)
	sc := sampleConversation("conv-1")
	require.NoError(t, s.Save(sc))

	sc.Title = "renamed"
	sc.UpdatedAt = sc.UpdatedAt.Add(time.Hour)
	require.NoError(t, s.Save(sc))

	loaded, err := s.Load("conv-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", loaded.Title)
	assert.True(t, sc.CreatedAt.Equal(loaded.CreatedAt))
}

func TestLoadMissingReturnsError(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load("missing")
	assert.Error(t, err)
}

func TestListOrdersByUpdatedAtDescending(t *testing.T) {
	s := newTestStore(t)
	older := sampleConversation("conv-older")
	newer := sampleConversation("conv-newer")
	newer.UpdatedAt = older.UpdatedAt.Add(time.Hour)

	require.NoError(t, s.Save(older))
	require.NoError(t, s.Save(newer))

	summaries, err := s.List()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "conv-newer", summaries[0].ID)
	assert.Equal(t, "conv-older", summaries[1].ID)
}

func TestDeleteRemovesBothRows(t *testing.T) {
	s := newTestStore(t)
	sc := sampleConversation("conv-1")
	require.NoError(t, s.Save(sc))
	require.NoError(t, s.Delete("conv-1"))

	_, err := s.Load("conv-1")
	assert.Error(t, err)

	summaries, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, summaries)
}
