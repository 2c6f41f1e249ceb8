package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "webhook:idem:"

// RedisStore keeps webhook keys in Redis so retries landing on another
// instance still replay. Expiry rides on the Redis key TTL.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore constructs a store over the given client.
func NewRedisStore(client redis.UniversalClient) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("idempotency: redis client is required")
	}
	return &RedisStore{client: client}, nil
}

// Begin implements the Store interface. The reservation is a SETNX; losing
// the race reads the winner's record.
func (s *RedisStore) Begin(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()

	rec := Record{
		Key:         storageKey(key),
		Fingerprint: fingerprint,
		State:       StateInFlight,
		StoredAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return OutcomeNew, Record{}, fmt.Errorf("idempotency: encode record: %w", err)
	}

	id := s.redisKey(key)
	for attempt := 0; attempt < 2; attempt++ {
		set, err := s.client.SetNX(ctx, id, data, ttl).Result()
		if err != nil {
			return OutcomeNew, Record{}, fmt.Errorf("idempotency: reserve key: %w", err)
		}
		if set {
			return OutcomeNew, rec, nil
		}

		existing, err := s.load(ctx, id)
		if errors.Is(err, redis.Nil) {
			// The winner's record expired between SETNX and GET.
			continue
		}
		if err != nil {
			return OutcomeNew, Record{}, err
		}
		if existing.Fingerprint != fingerprint {
			return OutcomeNew, Record{}, ErrKeyReused
		}
		if existing.State == StateDone {
			return OutcomeReplay, existing, nil
		}
		return OutcomeInFlight, existing, nil
	}
	return OutcomeNew, Record{}, errors.New("idempotency: reserve key: record kept expiring")
}

// Complete implements the Store interface.
func (s *RedisStore) Complete(ctx context.Context, rec Record, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	id := s.redisKey(rec.Key)
	existing, err := s.load(ctx, id)
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if err == nil && existing.Fingerprint != rec.Fingerprint {
		return ErrKeyReused
	}

	rec.Key = storageKey(rec.Key)
	rec.State = StateDone
	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now().UTC()
	}
	rec.ExpiresAt = rec.StoredAt.Add(ttl)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	if err := s.client.Set(ctx, id, data, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: store acknowledgement: %w", err)
	}
	return nil
}

// Abandon implements the Store interface.
func (s *RedisStore) Abandon(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("idempotency: abandon key: %w", err)
	}
	return nil
}

// redisKey hashes the gateway's key so arbitrary callback ids stay within
// Redis key length limits.
func (s *RedisStore) redisKey(key string) string {
	sum := sha256.Sum256([]byte(storageKey(key)))
	return redisKeyPrefix + hex.EncodeToString(sum[:])
}

func (s *RedisStore) load(ctx context.Context, id string) (Record, error) {
	data, err := s.client.Get(ctx, id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("idempotency: load record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return rec, nil
}
