// Package boltstore is a BoltDB-backed ConversationStore, grounded on the
// teacher's triple-bucket BBoltConversationStore: a full-record bucket, a
// cheap-listing summary bucket, and a search-index bucket kept in sync by
// every write.
package boltstore

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/arcweave/agentcore/pkg/store"
)

var (
	bucketConversations = []byte("conversations")
	bucketSummaries     = []byte("summaries")
	bucketSearchIndex   = []byte("search_index")
)

// Store implements store.ConversationStore over a BoltDB file, opening a
// fresh connection per operation the way the teacher's withDB does, so
// multiple processes may share the file without holding a long-lived lock.
type Store struct {
	dbPath string
}

// New opens (creating if needed) a BoltDB-backed conversation store at
// dbPath.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "boltstore: failed to create database directory")
	}
	s := &Store{dbPath: dbPath}
	if err := s.withDB(s.ensureBuckets); err != nil {
		return nil, errors.Wrap(err, "boltstore: failed to initialize database")
	}
	return s, nil
}

func (s *Store) withDB(operation func(*bbolt.DB) error) error {
	db, err := bbolt.Open(s.dbPath, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return errors.Wrap(err, "boltstore: failed to open database")
	}
	defer db.Close()
	return operation(db)
}

func (s *Store) ensureBuckets(db *bbolt.DB) error {
	return db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketConversations, bucketSummaries, bucketSearchIndex} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// Save writes the full record, its summary, and its search-index entries
// in one transaction (spec §4.6 "Atomicity").
func (s *Store) Save(sc store.SerializedConversation) error {
	return s.withDB(func(db *bbolt.DB) error {
		return db.Update(func(tx *bbolt.Tx) error {
			recordData, err := json.Marshal(sc)
			if err != nil {
				return errors.Wrap(err, "boltstore: failed to marshal conversation")
			}
			summary := store.ToSummary(sc)
			summaryData, err := json.Marshal(summary)
			if err != nil {
				return errors.Wrap(err, "boltstore: failed to marshal summary")
			}

			if err := tx.Bucket(bucketConversations).Put([]byte(sc.ID), recordData); err != nil {
				return errors.Wrap(err, "boltstore: failed to save conversation record")
			}
			if err := tx.Bucket(bucketSummaries).Put(append([]byte("conv:"), sc.ID...), summaryData); err != nil {
				return errors.Wrap(err, "boltstore: failed to save conversation summary")
			}

			search := tx.Bucket(bucketSearchIndex)
			var firstText string
			for _, m := range sc.Messages {
				if m.Role == "user" && len(m.Segments) > 0 {
					firstText = m.Segments[0].Text
					break
				}
			}
			if err := search.Put(append([]byte("msg:"), sc.ID...), []byte(firstText)); err != nil {
				return errors.Wrap(err, "boltstore: failed to save search index")
			}
			if err := search.Put(append([]byte("title:"), sc.ID...), []byte(sc.Title)); err != nil {
				return errors.Wrap(err, "boltstore: failed to save search index")
			}
			return nil
		})
	})
}

// Load retrieves the full record for id.
func (s *Store) Load(id string) (store.SerializedConversation, error) {
	var sc store.SerializedConversation
	err := s.withDB(func(db *bbolt.DB) error {
		return db.View(func(tx *bbolt.Tx) error {
			data := tx.Bucket(bucketConversations).Get([]byte(id))
			if data == nil {
				return errors.Errorf("boltstore: conversation not found: %s", id)
			}
			return json.Unmarshal(data, &sc)
		})
	})
	return sc, err
}

// List returns every conversation summary, newest first.
func (s *Store) List() ([]store.Summary, error) {
	var summaries []store.Summary
	err := s.withDB(func(db *bbolt.DB) error {
		return db.View(func(tx *bbolt.Tx) error {
			cursor := tx.Bucket(bucketSummaries).Cursor()
			prefix := []byte("conv:")
			for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
				var sum store.Summary
				if err := json.Unmarshal(v, &sum); err != nil {
					continue
				}
				summaries = append(summaries, sum)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt) })
	return summaries, nil
}

// Delete removes id from all three buckets.
func (s *Store) Delete(id string) error {
	return s.withDB(func(db *bbolt.DB) error {
		return db.Update(func(tx *bbolt.Tx) error {
			if err := tx.Bucket(bucketConversations).Delete([]byte(id)); err != nil {
				return err
			}
			if err := tx.Bucket(bucketSummaries).Delete(append([]byte("conv:"), id...)); err != nil {
				return err
			}
			search := tx.Bucket(bucketSearchIndex)
			_ = search.Delete(append([]byte("msg:"), id...))
			_ = search.Delete(append([]byte("title:"), id...))
			return nil
		})
	})
}

// Close is a no-op: Store opens a fresh *bbolt.DB per operation rather
// than holding one open, matching the teacher's withDB pattern.
func (s *Store) Close() error { return nil }
