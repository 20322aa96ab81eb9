// Package leveldb implements the database.Storage interface on top of an
// embedded LevelDB key/value store. Entity tables share one keyspace using
// a table prefix, and batches commit through LevelDB's atomic write batch.
package leveldb

import (
	"errors"
	"fmt"

	goleveldb "github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/quarrylabs/rollclient/foundation/rollup/database"
)

// LevelDB represents the embedded storage implementation. This implements
// the database.Storage interface.
type LevelDB struct {
	db *goleveldb.DB
}

// New opens or creates the store at the specified path.
func New(path string) (*LevelDB, error) {
	db, err := goleveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}

	return &LevelDB{db: db}, nil
}

// Close closes the underlying store.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

// Get returns the raw entity data for the specified table and key.
func (l *LevelDB) Get(table database.Table, key string) ([]byte, error) {
	data, err := l.db.Get(storageKey(table, key), nil)
	if err != nil {
		if errors.Is(err, goleveldb.ErrNotFound) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}

	return data, nil
}

// ForEach walks every entity in the specified table in key order.
func (l *LevelDB) ForEach(table database.Table, fn func(key string, data []byte) error) error {
	prefix := storageKey(table, "")

	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		key := string(iter.Key()[len(prefix):])
		data := append([]byte{}, iter.Value()...)

		if err := fn(key, data); err != nil {
			return err
		}
	}

	return iter.Error()
}

// Apply commits the writes as a single atomic unit via a LevelDB write
// batch.
func (l *LevelDB) Apply(writes []database.Write) error {
	batch := new(goleveldb.Batch)

	for _, write := range writes {
		if write.Delete {
			batch.Delete(storageKey(write.Table, write.Key))
			continue
		}
		batch.Put(storageKey(write.Table, write.Key), write.Data)
	}

	return l.db.Write(batch, nil)
}

// storageKey forms the physical key for an entity.
func storageKey(table database.Table, key string) []byte {
	return []byte(string(table) + ":" + key)
}
