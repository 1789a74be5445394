package migrations

import (
	"database/sql"

	"github.com/arcweave/agentcore/pkg/db"
	"github.com/pkg/errors"
)

// Migration20260204163001AddPerformanceIndexes adds updated_at indexes to
// both tables; List orders summaries by updated_at.
func Migration20260204163001AddPerformanceIndexes() db.Migration {
	return db.Migration{
		Version:     20260204163001,
		Description: "Add performance indexes for conversations and summaries",
		Up: func(tx *sql.Tx) error {
			indexes := []string{
				"CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC)",
				"CREATE INDEX IF NOT EXISTS idx_summaries_updated_at ON conversation_summaries(updated_at DESC)",
			}
			for _, idx := range indexes {
				if _, err := tx.Exec(idx); err != nil {
					return errors.Wrap(err, "failed to create index")
				}
			}
			return nil
		},
		Down: func(tx *sql.Tx) error {
			dropIndexes := []string{
				"DROP INDEX IF EXISTS idx_summaries_updated_at",
				"DROP INDEX IF EXISTS idx_conversations_updated_at",
			}
			for _, drop := range dropIndexes {
				if _, err := tx.Exec(drop); err != nil {
					return errors.Wrap(err, "failed to drop index")
				}
			}
			return nil
		},
	}
}
