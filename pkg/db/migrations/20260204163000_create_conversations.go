package migrations

import (
	"database/sql"

	"github.com/arcweave/agentcore/pkg/db"
	"github.com/pkg/errors"
)

// Migration20260204163000CreateConversations creates the conversations and
// conversation_summaries tables backing sqlitestore.
func Migration20260204163000CreateConversations() db.Migration {
	return db.Migration{
		Version:     20260204163000,
		Description: "Create conversations and conversation_summaries tables",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS conversations (
					id TEXT PRIMARY KEY,
					version INTEGER NOT NULL,
					record_json TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)
			`); err != nil {
				return errors.Wrap(err, "failed to create conversations table")
			}

			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS conversation_summaries (
					id TEXT PRIMARY KEY,
					title TEXT,
					token_total INTEGER NOT NULL,
					updated_at DATETIME NOT NULL
				)
			`); err != nil {
				return errors.Wrap(err, "failed to create conversation_summaries table")
			}

			return nil
		},
		Down: func(tx *sql.Tx) error {
			if _, err := tx.Exec("DROP TABLE IF EXISTS conversation_summaries"); err != nil {
				return errors.Wrap(err, "failed to drop conversation_summaries table")
			}
			if _, err := tx.Exec("DROP TABLE IF EXISTS conversations"); err != nil {
				return errors.Wrap(err, "failed to drop conversations table")
			}
			return nil
		},
	}
}
