package slices

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBBackend persists the slice queue in a LevelDB database.
type LevelDBBackend struct {
	*kvQueue
}

// NewLevelDBBackend opens or creates the queue at path. An empty path keeps
// the database in memory.
func NewLevelDBBackend(path string, cacheSize int) (*LevelDBBackend, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %q: %w", path, err)
	}
	q, err := newKVQueue("leveldb", &levelStore{db: db}, cacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &LevelDBBackend{kvQueue: q}, nil
}

type levelStore struct {
	db *leveldb.DB
}

func (s *levelStore) Get(key []byte) ([]byte, error) {
	data, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, errKeyNotFound
	}
	return data, err
}

func (s *levelStore) Put(key, value []byte) error { return s.db.Put(key, value, nil) }

func (s *levelStore) Delete(key []byte) error { return s.db.Delete(key, nil) }

func (s *levelStore) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *levelStore) Close() error { return s.db.Close() }
