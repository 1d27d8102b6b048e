package storedb

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-errors/errors"
	"go.etcd.io/bbolt"
)

const dbFilename = "store.db"

var settingsBucket = []byte("settings")

// DB keeps the few settings storefrontd has to remember across restarts.
// Orders are never stored, the node is their store of record.
type DB struct {
	*bbolt.DB
}

// Open opens or creates store.db inside dir.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Errorf("Could not create data directory: %v", err)
	}

	bdb, err := bbolt.Open(filepath.Join(dir, dbFilename), 0600, &bbolt.Options{
		Timeout: time.Second,
	})
	if err != nil {
		return nil, errors.Errorf("Could not open %v: %v", dbFilename, err)
	}

	db := &DB{DB: bdb}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	})
	if err != nil {
		_ = bdb.Close()
		return nil, errors.Errorf("Could not create buckets: %v", err)
	}

	return db, nil
}
