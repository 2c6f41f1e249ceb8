package idempotency

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStore(client)
	if err != nil {
		t.Fatalf("NewRedisStore returned error: %v", err)
	}
	return store, srv
}

func TestRedisStoreBeginReservesNewKey(t *testing.T) {
	store, _ := newTestRedisStore(t)
	now := testClock()

	outcome, rec, err := store.Begin(context.Background(), "cb-1", "fp-1", now, time.Hour)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if outcome != OutcomeNew {
		t.Fatalf("outcome = %v, want OutcomeNew", outcome)
	}
	if rec.State != StateInFlight {
		t.Fatalf("record state = %s, want in_flight", rec.State)
	}
}

func TestRedisStoreReplaysAcknowledgement(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := testClock()

	if _, _, err := store.Begin(ctx, "cb-1", "fp-1", now, time.Hour); err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	err := store.Complete(ctx, Record{
		Key:         "cb-1",
		Fingerprint: "fp-1",
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        []byte(`{"code":1}`),
		StoredAt:    now,
	}, time.Hour)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	outcome, rec, err := store.Begin(ctx, "cb-1", "fp-1", now.Add(time.Minute), time.Hour)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if outcome != OutcomeReplay {
		t.Fatalf("outcome = %v, want OutcomeReplay", outcome)
	}
	if rec.StatusCode != http.StatusOK || string(rec.Body) != `{"code":1}` {
		t.Fatalf("replayed record = %+v", rec)
	}
}

func TestRedisStoreReportsInFlightKey(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := testClock()

	if _, _, err := store.Begin(ctx, "cb-1", "fp-1", now, time.Hour); err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	outcome, _, err := store.Begin(ctx, "cb-1", "fp-1", now.Add(time.Second), time.Hour)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if outcome != OutcomeInFlight {
		t.Fatalf("outcome = %v, want OutcomeInFlight", outcome)
	}
}

func TestRedisStoreRejectsForeignFingerprint(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := testClock()

	if _, _, err := store.Begin(ctx, "cb-1", "fp-1", now, time.Hour); err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if _, _, err := store.Begin(ctx, "cb-1", "fp-other", now, time.Hour); !errors.Is(err, ErrKeyReused) {
		t.Fatalf("Begin error = %v, want ErrKeyReused", err)
	}
}

func TestRedisStoreAbandonFreesKey(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := testClock()

	if _, _, err := store.Begin(ctx, "cb-1", "fp-1", now, time.Hour); err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if err := store.Abandon(ctx, "cb-1"); err != nil {
		t.Fatalf("Abandon returned error: %v", err)
	}

	outcome, _, err := store.Begin(ctx, "cb-1", "fp-1", now.Add(time.Second), time.Hour)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if outcome != OutcomeNew {
		t.Fatalf("outcome = %v, want OutcomeNew after abandon", outcome)
	}
}

func TestRedisStoreExpiryFreesKey(t *testing.T) {
	store, srv := newTestRedisStore(t)
	ctx := context.Background()
	now := testClock()

	if _, _, err := store.Begin(ctx, "cb-1", "fp-1", now, time.Minute); err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	srv.FastForward(2 * time.Minute)

	outcome, _, err := store.Begin(ctx, "cb-1", "fp-1", now.Add(2*time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if outcome != OutcomeNew {
		t.Fatalf("outcome = %v, want OutcomeNew after expiry", outcome)
	}
}
