package slices

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/log"
)

// DefaultSliceCacheSize is the number of decoded slices kept by a persisted
// backend.
const DefaultSliceCacheSize = 16

var (
	sliceKeyPrefix = []byte("s")
	headKey        = []byte("m:head")
	tailKey        = []byte("m:tail")

	errKeyNotFound = errors.New("key not found")
)

// kvStore is the key-value surface a persisted backend needs.
type kvStore interface {
	// Get returns errKeyNotFound for missing keys.
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	// Iterate visits the keys under prefix in byte order.
	Iterate(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

func sliceKey(index uint64) []byte {
	key := make([]byte, len(sliceKeyPrefix)+8)
	copy(key, sliceKeyPrefix)
	binary.BigEndian.PutUint64(key[len(sliceKeyPrefix):], index)
	return key
}

func sliceIndex(key []byte) (uint64, error) {
	if len(key) != len(sliceKeyPrefix)+8 {
		return 0, fmt.Errorf("malformed slice key %x", key)
	}
	return binary.BigEndian.Uint64(key[len(sliceKeyPrefix):]), nil
}

// kvQueue is a FIFO of raw slices over a key-value store. Slices are stored
// as JSON under big-endian sequence numbers so byte order is queue order; the
// head and tail counters are persisted with them, so a reopened store resumes
// the queue where it was left.
type kvQueue struct {
	name  string
	store kvStore
	head  uint64
	tail  uint64
	cache *lru.Cache[uint64, *RawSlice]
}

func newKVQueue(name string, store kvStore, cacheSize int) (*kvQueue, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultSliceCacheSize
	}
	cache, err := lru.New[uint64, *RawSlice](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create slice cache: %w", err)
	}
	q := &kvQueue{name: name, store: store, cache: cache}
	if q.head, err = q.counter(headKey); err != nil {
		return nil, err
	}
	if q.tail, err = q.counter(tailKey); err != nil {
		return nil, err
	}
	if q.head > q.tail {
		return nil, fmt.Errorf("%s slice queue is corrupted: head %d after tail %d", name, q.head, q.tail)
	}
	log.Debug(log.BackendModule, "Slice queue opened", "backend", name, "pending", q.tail-q.head)
	return q, nil
}

func (q *kvQueue) counter(key []byte) (uint64, error) {
	data, err := q.store.Get(key)
	if errors.Is(err, errKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("malformed counter %s", key)
	}
	return binary.BigEndian.Uint64(data), nil
}

func (q *kvQueue) setCounter(key []byte, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return q.store.Put(key, buf[:])
}

func (q *kvQueue) Push(s *RawSlice) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode slice %d: %w", s.Index, err)
	}
	if err := q.store.Put(sliceKey(q.tail), data); err != nil {
		return fmt.Errorf("failed to store slice %d: %w", s.Index, err)
	}
	if err := q.setCounter(tailKey, q.tail+1); err != nil {
		return fmt.Errorf("failed to advance queue tail: %w", err)
	}
	q.cache.Add(q.tail, s)
	q.tail++
	log.Trace(log.BackendModule, "Slice pushed", "backend", q.name, "index", s.Index, "bytes", len(data))
	return nil
}

func (q *kvQueue) load(seq uint64) (*RawSlice, error) {
	if s, ok := q.cache.Get(seq); ok {
		return s, nil
	}
	data, err := q.store.Get(sliceKey(seq))
	if err != nil {
		return nil, fmt.Errorf("failed to load slice %d: %w", seq, err)
	}
	return q.decode(seq, data)
}

func (q *kvQueue) decode(seq uint64, data []byte) (*RawSlice, error) {
	var s RawSlice
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode slice %d: %w", seq, err)
	}
	q.cache.Add(seq, &s)
	return &s, nil
}

func (q *kvQueue) Peek() (*RawSlice, error) {
	if q.head == q.tail {
		return nil, ErrBackendEmpty
	}
	return q.load(q.head)
}

func (q *kvQueue) Pop() (*RawSlice, error) {
	s, err := q.Peek()
	if err != nil {
		return nil, err
	}
	if err := q.store.Delete(sliceKey(q.head)); err != nil {
		return nil, fmt.Errorf("failed to delete slice %d: %w", s.Index, err)
	}
	if err := q.setCounter(headKey, q.head+1); err != nil {
		return nil, fmt.Errorf("failed to advance queue head: %w", err)
	}
	q.cache.Remove(q.head)
	q.head++
	return s, nil
}

func (q *kvQueue) Len() int { return int(q.tail - q.head) }

func (q *kvQueue) ForEach(fn func(s *RawSlice) error) error {
	return q.store.Iterate(sliceKeyPrefix, func(key, value []byte) error {
		seq, err := sliceIndex(key)
		if err != nil {
			return err
		}
		if seq < q.head || seq >= q.tail {
			return nil
		}
		s, ok := q.cache.Get(seq)
		if !ok {
			if s, err = q.decode(seq, value); err != nil {
				return err
			}
		}
		return fn(s)
	})
}

func (q *kvQueue) Close() error {
	q.cache.Purge()
	return q.store.Close()
}
