// SPDX-License-Identifier: MIT

package store

// Bucket names used across the node.
const (
	BucketAccounts    = "accounts"
	BucketSpentNonces = "spent_nonces"
	BucketBindings    = "bindings"
	BucketEnrollments = "enrollments"
	BucketEpochs      = "epochs"
	BucketAudit       = "audit"
	BucketRejects     = "rejects"
	BucketMeta        = "meta"
)

// Buckets lists every bucket so implementations can pre-create them.
var Buckets = []string{
	BucketAccounts,
	BucketSpentNonces,
	BucketBindings,
	BucketEnrollments,
	BucketEpochs,
	BucketAudit,
	BucketRejects,
	BucketMeta,
}

// Tx is a transaction over namespaced key/value buckets.
type Tx interface {
	// Get returns nil when the key is absent.
	Get(bucket, key string) []byte
	Put(bucket, key string, val []byte) error
	Delete(bucket, key string) error
	// ForEach visits keys in lexical order; returning an error stops
	// the scan and propagates.
	ForEach(bucket string, fn func(key string, val []byte) error) error
}

// Store provides atomic read and read-write transactions. Everything a
// writer does inside Update commits or rolls back as one unit; that is
// the primitive the ledger and settlement engines build on.
type Store interface {
	View(fn func(tx Tx) error) error
	Update(fn func(tx Tx) error) error
	Close() error
}
