package slices

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// PebbleBackend persists the slice queue in a Pebble database.
type PebbleBackend struct {
	*kvQueue
}

// NewPebbleBackend opens or creates the queue at path. An empty path keeps
// the database in memory.
func NewPebbleBackend(path string, cacheSize int) (*PebbleBackend, error) {
	options := &pebble.Options{}
	if path == "" {
		options.FS = vfs.NewMem()
	}
	db, err := pebble.Open(path, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %q: %w", path, err)
	}
	q, err := newKVQueue("pebble", &pebbleStore{db: db}, cacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &PebbleBackend{kvQueue: q}, nil
}

type pebbleStore struct {
	db *pebble.DB
}

func (s *pebbleStore) Get(key []byte) ([]byte, error) {
	dat, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, errKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// The returned slice is only valid until the closer is released.
	return append([]byte(nil), dat...), nil
}

func (s *pebbleStore) Put(key, value []byte) error { return s.db.Set(key, value, pebble.Sync) }

func (s *pebbleStore) Delete(key []byte) error { return s.db.Delete(key, pebble.Sync) }

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	limit := append([]byte(nil), prefix...)
	for i := len(limit) - 1; i >= 0; i-- {
		limit[i]++
		if limit[i] != 0 {
			return limit[:i+1]
		}
	}
	return nil
}

func (s *pebbleStore) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *pebbleStore) Close() error { return s.db.Close() }
