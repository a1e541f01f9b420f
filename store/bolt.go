// SPDX-License-Identifier: MIT

package store

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	bolt "go.etcd.io/bbolt"
)

var errBucketMissing = errors.New("bucket missing")

// BoltStore is the durable Store backed by a single bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database file and ensures all buckets
// exist. The open is retried with exponential backoff: on restart the
// previous process may still hold the file lock for a moment.
func OpenBolt(path string) (*BoltStore, error) {
	var db *bolt.DB
	op := func() error {
		var err error
		db, err = bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
		return err
	}
	pol := backoff.NewExponentialBackOff()
	pol.MaxElapsedTime = 15 * time.Second
	if err := backoff.Retry(op, pol); err != nil {
		return nil, err
	}

	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range Buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) View(fn func(tx Tx) error) error {
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&boltTx{tx: btx})
	})
}

func (s *BoltStore) Update(fn func(tx Tx) error) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&boltTx{tx: btx})
	})
}

func (s *BoltStore) Close() error { return s.db.Close() }

type boltTx struct {
	tx *bolt.Tx
}

func (t *boltTx) Get(bucket, key string) []byte {
	b := t.tx.Bucket([]byte(bucket))
	if b == nil {
		return nil
	}
	v := b.Get([]byte(key))
	if v == nil {
		return nil
	}
	// bbolt values are only valid inside the transaction.
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (t *boltTx) Put(bucket, key string, val []byte) error {
	b := t.tx.Bucket([]byte(bucket))
	if b == nil {
		return errBucketMissing
	}
	return b.Put([]byte(key), val)
}

func (t *boltTx) Delete(bucket, key string) error {
	b := t.tx.Bucket([]byte(bucket))
	if b == nil {
		return errBucketMissing
	}
	return b.Delete([]byte(key))
}

func (t *boltTx) ForEach(bucket string, fn func(key string, val []byte) error) error {
	b := t.tx.Bucket([]byte(bucket))
	if b == nil {
		return errBucketMissing
	}
	return b.ForEach(func(k, v []byte) error {
		return fn(string(k), v)
	})
}
