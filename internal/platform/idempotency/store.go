// Package idempotency deduplicates payment-gateway callbacks. The gateway
// retries a webhook until it is acknowledged; each attempt carries the same
// key, so the first attempt does the work and later attempts replay the
// recorded acknowledgement.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// DefaultTTL covers the gateway's retry horizon; a key older than this is
// treated as a fresh callback.
const DefaultTTL = 24 * time.Hour

// State of a stored key.
type State string

const (
	// StateInFlight marks a key whose first attempt is still processing.
	StateInFlight State = "in_flight"
	// StateDone marks a key whose acknowledgement has been recorded.
	StateDone State = "done"
)

// Outcome reports what Begin found for a key.
type Outcome int

const (
	// OutcomeNew means the key is unseen and the caller must process the
	// callback.
	OutcomeNew Outcome = iota
	// OutcomeReplay means a recorded acknowledgement is available.
	OutcomeReplay
	// OutcomeInFlight means another attempt currently holds the key.
	OutcomeInFlight
)

// Record is the stored acknowledgement for one webhook key.
type Record struct {
	Key         string
	Fingerprint string
	State       State
	StatusCode  int
	ContentType string
	Body        []byte
	StoredAt    time.Time
	ExpiresAt   time.Time
}

// Store keeps webhook keys and their recorded acknowledgements.
type Store interface {
	// Begin reserves the key for processing. A key seen before with the same
	// fingerprint reports a replay or an in-flight attempt instead.
	Begin(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Record, error)
	// Complete records the acknowledgement so later attempts can replay it.
	Complete(ctx context.Context, rec Record, ttl time.Duration) error
	// Abandon forgets an in-flight key so the gateway's next retry is
	// processed from scratch.
	Abandon(ctx context.Context, key string) error
}

// ErrKeyReused reports a key presented with a different request fingerprint
// than the one it was first seen with.
var ErrKeyReused = errors.New("idempotency: key reused for a different request")

// Fingerprint condenses the parts of a callback that must not change between
// retries of the same key.
func Fingerprint(method, path string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(strings.ToUpper(method)))
	sum.Write([]byte{0})
	sum.Write([]byte(path))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

func storageKey(key string) string {
	return strings.TrimSpace(key)
}
