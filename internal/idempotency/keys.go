// Package idempotency generates and deduplicates operation keys.
//
// A key is minted exactly once per logical intent and reused verbatim across
// network retries of that intent, so the authority can collapse duplicate
// submissions. The store keeps a TTL-bounded set of keys it has handed to the
// dispatcher; Seen and Remember are exposed as one atomic check-and-set so
// two near-simultaneous duplicates cannot both observe "not seen".
package idempotency

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL bounds how long a key is remembered for dedup purposes.
const DefaultTTL = 60 * time.Second

// Keys is a TTL-bounded idempotency key store. The zero value is not usable;
// construct with NewKeys.
type Keys struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewKeys constructs a store. A non-positive ttl falls back to DefaultTTL.
func NewKeys(ttl time.Duration) *Keys {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Keys{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Generate mints a fresh key for one logical intent. The context and
// discriminators make keys self-describing for audit; the UUID component
// keeps two distinct intents with identical discriminators apart even within
// the same clock tick.
func (k *Keys) Generate(context string, discriminators ...string) string {
	parts := make([]string, 0, len(discriminators)+2)
	parts = append(parts, context)
	parts = append(parts, discriminators...)
	parts = append(parts, uuid.NewString())
	return strings.Join(parts, ":")
}

// SeenOrRemember atomically reports whether the key was already recorded
// within the TTL window, recording it if not.
func (k *Keys) SeenOrRemember(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	k.cleanupLocked(now)

	if _, ok := k.seen[key]; ok {
		return true
	}
	k.seen[key] = now
	return false
}

// Seen reports whether the key is currently remembered.
func (k *Keys) Seen(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.cleanupLocked(k.now())
	_, ok := k.seen[key]
	return ok
}

// Remember records the key with the current timestamp.
func (k *Keys) Remember(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	k.cleanupLocked(now)
	k.seen[key] = now
}

// Forget releases a key before its TTL expires. The dispatcher uses this
// after a transient failure so the same intent can be resubmitted under its
// original key on a later cycle.
func (k *Keys) Forget(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.seen, key)
}

// Len reports how many keys are currently remembered.
func (k *Keys) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.cleanupLocked(k.now())
	return len(k.seen)
}

// cleanupLocked lazily evicts entries older than the TTL. Callers hold mu.
func (k *Keys) cleanupLocked(now time.Time) {
	for key, firstSeen := range k.seen {
		if now.Sub(firstSeen) > k.ttl {
			delete(k.seen, key)
		}
	}
}
