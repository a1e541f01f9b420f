// SPDX-License-Identifier: MIT

package types

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// ConsumeResult classifies a challenge consumption attempt.
type ConsumeResult int

const (
	ConsumeOk ConsumeResult = iota
	ConsumeExpired
	ConsumeAlreadyUsed
	ConsumeUnknown
)

func (r ConsumeResult) String() string {
	switch r {
	case ConsumeOk:
		return "ok"
	case ConsumeExpired:
		return "expired"
	case ConsumeAlreadyUsed:
		return "already_used"
	default:
		return "unknown"
	}
}

// Challenge is a single-use attestation nonce.
type Challenge struct {
	Nonce     string  `json:"nonce"`
	Miner     MinerID `json:"miner_id,omitempty"`
	IssuedAt  int64   `json:"issued_at"`
	ExpiresAt int64   `json:"expires_at"`
}

// challengeEntry keeps the precise expiry alongside the wire-level
// challenge; the ExpiresAt field is truncated to whole seconds and
// would let a sub-second TTL outlive itself.
type challengeEntry struct {
	Challenge
	expiresAt time.Time
	consumed  bool
}

// ChallengeRegistry issues single-use nonces and consumes each at most
// once. Entries are retained past their logical TTL so a late submit is
// answered "expired" rather than "unknown"; the cache's own expiry loop
// prunes them afterwards, and only entries past retention are evicted,
// never a live unconsumed nonce.
type ChallengeRegistry struct {
	ttl   time.Duration
	cache *ttlcache.Cache[string, *challengeEntry]

	mu sync.Mutex // serializes consume; makes single-use linearizable
}

// retention keeps spent and expired entries around for replay reporting.
func retention(ttl time.Duration) time.Duration {
	r := 10 * ttl
	if r < time.Hour {
		r = time.Hour
	}
	return r
}

func NewChallengeRegistry(ttl time.Duration) *ChallengeRegistry {
	cache := ttlcache.New[string, *challengeEntry](
		ttlcache.WithTTL[string, *challengeEntry](retention(ttl)),
		ttlcache.WithDisableTouchOnHit[string, *challengeEntry](),
	)
	return &ChallengeRegistry{ttl: ttl, cache: cache}
}

// Start runs the background pruner until Stop.
func (r *ChallengeRegistry) Start() { go r.cache.Start() }

func (r *ChallengeRegistry) Stop() { r.cache.Stop() }

// Issue mints a fresh challenge, optionally tied to a miner identity.
func (r *ChallengeRegistry) Issue(miner MinerID) Challenge {
	now := time.Now()
	expiry := now.Add(r.ttl)
	ch := Challenge{
		Nonce:     uuid.NewString(),
		Miner:     miner,
		IssuedAt:  now.Unix(),
		ExpiresAt: expiry.Unix(),
	}
	r.cache.Set(ch.Nonce, &challengeEntry{Challenge: ch, expiresAt: expiry}, ttlcache.DefaultTTL)
	return ch
}

// Consume spends a nonce. Exactly one concurrent caller observes
// ConsumeOk; everyone else sees the terminal classification.
func (r *ChallengeRegistry) Consume(nonce string, observed time.Time) ConsumeResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	item := r.cache.Get(nonce)
	if item == nil {
		return ConsumeUnknown
	}
	entry := item.Value()
	if entry.consumed {
		return ConsumeAlreadyUsed
	}
	if observed.After(entry.expiresAt) {
		return ConsumeExpired
	}
	entry.consumed = true
	return ConsumeOk
}

// Peek returns the challenge for a nonce without consuming it.
func (r *ChallengeRegistry) Peek(nonce string) (Challenge, bool) {
	item := r.cache.Get(nonce)
	if item == nil {
		return Challenge{}, false
	}
	return item.Value().Challenge, true
}

// Len reports the number of retained entries, spent ones included.
func (r *ChallengeRegistry) Len() int { return r.cache.Len() }
