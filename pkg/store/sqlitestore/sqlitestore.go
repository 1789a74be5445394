// Package sqlitestore is a SQLite-backed store.ConversationStore, grounded
// on the teacher's sqlx conversation store: a shared WAL-configured
// connection, a full-record table keyed by conversation id, and a
// denormalized summary table for cheap listing.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/arcweave/agentcore/pkg/db"
	"github.com/arcweave/agentcore/pkg/db/migrations"
	"github.com/arcweave/agentcore/pkg/store"
)

// Store implements store.ConversationStore over a single shared SQLite
// connection opened in WAL mode.
type Store struct {
	db *sqlx.DB
}

// New opens (creating and migrating if needed) a SQLite-backed
// conversation store at dbPath.
func New(ctx context.Context, dbPath string) (*Store, error) {
	sqlDB, err := db.Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	runner := db.NewMigrationRunner(sqlDB)
	if err := runner.Run(ctx, migrations.All()); err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "sqlitestore: failed to run migrations")
	}
	return &Store{db: sqlDB}, nil
}

type dbConversationRecord struct {
	ID         string `db:"id"`
	Version    int    `db:"version"`
	RecordJSON string `db:"record_json"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
}

type dbConversationSummary struct {
	ID         string `db:"id"`
	Title      string `db:"title"`
	TokenTotal uint64 `db:"token_total"`
	UpdatedAt  string `db:"updated_at"`
}

// Save persists sc's full record and its summary row in one transaction,
// using UPSERT to preserve created_at across repeated saves of the same
// conversation id.
func (s *Store) Save(sc store.SerializedConversation) error {
	ctx := context.Background()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlitestore: failed to begin transaction")
	}
	defer tx.Rollback()

	recordJSON, err := json.Marshal(sc)
	if err != nil {
		return errors.Wrap(err, "sqlitestore: failed to marshal conversation")
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO conversations (id, version, record_json, created_at, updated_at)
		VALUES (:id, :version, :record_json, :created_at, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			record_json = excluded.record_json,
			updated_at = excluded.updated_at
	`, dbConversationRecord{
		ID:         sc.ID,
		Version:    sc.Version,
		RecordJSON: string(recordJSON),
		CreatedAt:  sc.CreatedAt.Format(timeLayout),
		UpdatedAt:  sc.UpdatedAt.Format(timeLayout),
	})
	if err != nil {
		return errors.Wrap(err, "sqlitestore: failed to save conversation record")
	}

	summary := store.ToSummary(sc)
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO conversation_summaries (id, title, token_total, updated_at)
		VALUES (:id, :title, :token_total, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			token_total = excluded.token_total,
			updated_at = excluded.updated_at
	`, dbConversationSummary{
		ID:         summary.ID,
		Title:      summary.Title,
		TokenTotal: summary.TokenTotal,
		UpdatedAt:  summary.UpdatedAt.Format(timeLayout),
	})
	if err != nil {
		return errors.Wrap(err, "sqlitestore: failed to save conversation summary")
	}

	return tx.Commit()
}

// Load retrieves the full record for id.
func (s *Store) Load(id string) (store.SerializedConversation, error) {
	var rec dbConversationRecord
	err := s.db.Get(&rec, `SELECT id, version, record_json, created_at, updated_at FROM conversations WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.SerializedConversation{}, errors.Errorf("sqlitestore: conversation not found: %s", id)
		}
		return store.SerializedConversation{}, errors.Wrap(err, "sqlitestore: failed to load conversation record")
	}

	var sc store.SerializedConversation
	if err := json.Unmarshal([]byte(rec.RecordJSON), &sc); err != nil {
		return store.SerializedConversation{}, errors.Wrap(err, "sqlitestore: failed to unmarshal conversation record")
	}
	return sc, nil
}

// List returns every conversation summary, newest first.
func (s *Store) List() ([]store.Summary, error) {
	var rows []dbConversationSummary
	err := s.db.Select(&rows, `SELECT id, title, token_total, updated_at FROM conversation_summaries ORDER BY updated_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlitestore: failed to list conversation summaries")
	}

	summaries := make([]store.Summary, 0, len(rows))
	for _, r := range rows {
		updatedAt, err := parseTime(r.UpdatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "sqlitestore: failed to parse updated_at")
		}
		summaries = append(summaries, store.Summary{
			ID: r.ID, Title: r.Title, TokenTotal: r.TokenTotal, UpdatedAt: updatedAt,
		})
	}
	return summaries, nil
}

// Delete removes id from both tables.
func (s *Store) Delete(id string) error {
	ctx := context.Background()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlitestore: failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id); err != nil {
		return errors.Wrap(err, "sqlitestore: failed to delete conversation record")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM conversation_summaries WHERE id = ?", id); err != nil {
		return errors.Wrap(err, "sqlitestore: failed to delete conversation summary")
	}
	return tx.Commit()
}

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }
