package historystore

import (
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var bucketRecentQueue = []byte("recent_agent_threads")
var keyRecentQueue = []byte("recent-agent-threads")

// BoltQueueStore is a BoltDB-backed RecentQueueStore, opening a fresh
// connection per operation the way boltstore.Store does.
type BoltQueueStore struct {
	dbPath string
}

// NewBoltQueueStore opens (creating if needed) a BoltDB-backed recent
// queue store at dbPath.
func NewBoltQueueStore(dbPath string) (*BoltQueueStore, error) {
	s := &BoltQueueStore{dbPath: dbPath}
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "historystore: failed to open recent-queue database")
	}
	defer db.Close()
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecentQueue)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "historystore: failed to initialize recent-queue bucket")
	}
	return s, nil
}

// Save writes data under the single recent-agent-threads key.
func (s *BoltQueueStore) Save(data []byte) error {
	db, err := bbolt.Open(s.dbPath, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return errors.Wrap(err, "historystore: failed to open recent-queue database")
	}
	defer db.Close()
	return db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecentQueue).Put(keyRecentQueue, data)
	})
}

// Load reads the persisted recently-opened queue, returning nil if none
// has been saved yet.
func (s *BoltQueueStore) Load() ([]byte, error) {
	db, err := bbolt.Open(s.dbPath, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "historystore: failed to open recent-queue database")
	}
	defer db.Close()

	var data []byte
	err = db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketRecentQueue).Get(keyRecentQueue); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	return data, err
}
