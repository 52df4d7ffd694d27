package walletwebhook

import (
	"context"
	"testing"
	"time"
)

type memoryGuard struct {
	keys map[string]struct{}
	err  error
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{keys: map[string]struct{}{}}
}

func (g *memoryGuard) CheckAndMark(_ context.Context, id string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if _, ok := g.keys[id]; ok {
		return true, nil
	}
	g.keys[id] = struct{}{}
	return false, nil
}

func (g *memoryGuard) Delete(_ context.Context, id string) error {
	delete(g.keys, id)
	return nil
}

// cancellingGuard cancels the caller's context once the delivery is marked
// and refuses to release keys under a cancelled context.
type cancellingGuard struct {
	*memoryGuard
	cancel    context.CancelFunc
	deleteErr error
}

func (g *cancellingGuard) CheckAndMark(ctx context.Context, id string) (bool, error) {
	seen, err := g.memoryGuard.CheckAndMark(ctx, id)
	if g.cancel != nil {
		g.cancel()
	}
	return seen, err
}

func (g *cancellingGuard) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.deleteErr != nil {
		return g.deleteErr
	}
	return g.memoryGuard.Delete(ctx, id)
}

type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	return m.values[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "cb:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestIdempotencyGuardMarksOnce(t *testing.T) {
	store := &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
	guard, err := NewIdempotencyGuard(store, time.Hour, "wallet_webhook")
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	id := DeliveryID("ord-1", "fulfilled", "sig")

	seen, err := guard.CheckAndMark(context.Background(), id)
	if err != nil || seen {
		t.Fatalf("first mark: seen=%v err=%v", seen, err)
	}
	if ttl := store.ttls["cb:idempotency:wallet_webhook:"+id]; ttl != time.Hour {
		t.Fatalf("expected ttl 1h, got %v", ttl)
	}
	seen, err = guard.CheckAndMark(context.Background(), id)
	if err != nil || !seen {
		t.Fatalf("second mark: seen=%v err=%v", seen, err)
	}

	if err := guard.Delete(context.Background(), id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	seen, _ = guard.CheckAndMark(context.Background(), id)
	if seen {
		t.Fatalf("expected key released")
	}
}

func TestIdempotencyGuardValidation(t *testing.T) {
	if _, err := NewIdempotencyGuard(nil, time.Hour, "x"); err == nil {
		t.Fatal("expected store required")
	}
	store := &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
	if _, err := NewIdempotencyGuard(store, -time.Second, "x"); err == nil {
		t.Fatal("expected negative ttl rejected")
	}
	if _, err := NewIdempotencyGuard(store, time.Hour, ""); err == nil {
		t.Fatal("expected scope required")
	}
	guard, _ := NewIdempotencyGuard(store, time.Hour, "x")
	if _, err := guard.CheckAndMark(context.Background(), ""); err == nil {
		t.Fatal("expected empty id rejected")
	}
}

func TestDeliveryIDDistinguishesStatus(t *testing.T) {
	a := DeliveryID("ord-1", "fulfilled", "sig")
	b := DeliveryID("ord-1", "timed_out", "sig")
	if a == b {
		t.Fatal("status must be part of the delivery id")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %d chars", len(a))
	}
}
