// SPDX-License-Identifier: MIT

package store

import (
	"errors"
	"sort"
	"sync"
)

var errReadOnlyTx = errors.New("write in read-only transaction")

// MemStore is an in-memory Store with the same transactional contract
// as BoltStore. Update transactions stage their writes and publish them
// only on success, so a failed transaction leaves no trace.
type MemStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func NewMemStore() *MemStore {
	m := &MemStore{buckets: make(map[string]map[string][]byte)}
	for _, name := range Buckets {
		m.buckets[name] = make(map[string][]byte)
	}
	return m
}

func (m *MemStore) View(fn func(tx Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{store: m, readOnly: true})
}

func (m *MemStore) Update(fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{store: m, staged: make(map[string]map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	for bucket, kvs := range tx.staged {
		dst := m.buckets[bucket]
		for k, v := range kvs {
			if v == nil {
				delete(dst, k)
			} else {
				dst[k] = v
			}
		}
	}
	return nil
}

func (m *MemStore) Close() error { return nil }

type memTx struct {
	store    *MemStore
	readOnly bool
	// staged holds uncommitted writes; a nil value marks a delete.
	staged map[string]map[string][]byte
}

func (t *memTx) Get(bucket, key string) []byte {
	if t.staged != nil {
		if kvs, ok := t.staged[bucket]; ok {
			if v, ok := kvs[key]; ok {
				return cloneBytes(v)
			}
		}
	}
	b, ok := t.store.buckets[bucket]
	if !ok {
		return nil
	}
	return cloneBytes(b[key])
}

func (t *memTx) Put(bucket, key string, val []byte) error {
	if t.readOnly {
		return errReadOnlyTx
	}
	if _, ok := t.store.buckets[bucket]; !ok {
		return errBucketMissing
	}
	if t.staged[bucket] == nil {
		t.staged[bucket] = make(map[string][]byte)
	}
	t.staged[bucket][key] = cloneBytes(val)
	return nil
}

func (t *memTx) Delete(bucket, key string) error {
	if t.readOnly {
		return errReadOnlyTx
	}
	if _, ok := t.store.buckets[bucket]; !ok {
		return errBucketMissing
	}
	if t.staged[bucket] == nil {
		t.staged[bucket] = make(map[string][]byte)
	}
	t.staged[bucket][key] = nil
	return nil
}

func (t *memTx) ForEach(bucket string, fn func(key string, val []byte) error) error {
	b, ok := t.store.buckets[bucket]
	if !ok {
		return errBucketMissing
	}

	merged := make(map[string][]byte, len(b))
	for k, v := range b {
		merged[k] = v
	}
	if t.staged != nil {
		for k, v := range t.staged[bucket] {
			if v == nil {
				delete(merged, k)
			} else {
				merged[k] = v
			}
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, cloneBytes(merged[k])); err != nil {
			return err
		}
	}
	return nil
}

func cloneBytes(v []byte) []byte {
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
