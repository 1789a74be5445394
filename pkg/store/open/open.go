// Package open selects and constructs a store.ConversationStore backend
// by name, the way the teacher's NewConversationStore dispatches between
// its BBolt and SQLite implementations.
package open

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/arcweave/agentcore/pkg/store"
	"github.com/arcweave/agentcore/pkg/store/boltstore"
	"github.com/arcweave/agentcore/pkg/store/sqlitestore"
)

// New opens the ConversationStore named by storeType ("bbolt" or
// "sqlite") at basePath, defaulting to sqlite when storeType is empty
// (matching config.SetDefaults' "store_type" default).
func New(ctx context.Context, storeType, basePath string) (store.ConversationStore, error) {
	switch storeType {
	case "bbolt":
		return boltstore.New(filepath.Join(basePath, "storage.db"))
	case "", "sqlite":
		return sqlitestore.New(ctx, filepath.Join(basePath, "storage.db"))
	default:
		return nil, errors.Errorf("store: unknown store type %q", storeType)
	}
}
