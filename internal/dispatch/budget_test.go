package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/enums"
)

type fakePoolStore struct {
	pools map[uuid.UUID]*models.DispatchPool
	calls int
	err   error
}

func (f *fakePoolStore) FindPoolByID(ctx context.Context, id uuid.UUID) (*models.DispatchPool, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	pool, ok := f.pools[id]
	if !ok {
		return nil, ErrPoolNotFound
	}
	copied := *pool
	return &copied, nil
}

func newBudgetFixture(concurrency, rateLimit int, status enums.PoolStatus) (*Budgeter, *fakePoolStore, uuid.UUID) {
	id := uuid.New()
	store := &fakePoolStore{pools: map[uuid.UUID]*models.DispatchPool{
		id: {
			ID:          id,
			Code:        "TEST-POOL",
			Concurrency: concurrency,
			RateLimit:   rateLimit,
			Status:      status,
		},
	}}
	return NewBudgeter(store, time.Minute), store, id
}

func TestBudgeterEnforcesConcurrency(t *testing.T) {
	budgeter, _, poolID := newBudgetFixture(2, 1000, enums.PoolActive)
	ctx := context.Background()

	release1, ok, err := budgeter.TryAcquire(ctx, poolID)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	release2, ok, err := budgeter.TryAcquire(ctx, poolID)
	if err != nil || !ok {
		t.Fatalf("second acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := budgeter.TryAcquire(ctx, poolID); ok {
		t.Fatal("third acquire should have been refused")
	}

	release1()
	if _, ok, _ := budgeter.TryAcquire(ctx, poolID); !ok {
		t.Fatal("acquire after release should succeed")
	}
	release2()
}

func TestBudgeterEnforcesRate(t *testing.T) {
	budgeter, _, poolID := newBudgetFixture(100, 1, enums.PoolActive)
	ctx := context.Background()

	release, ok, err := budgeter.TryAcquire(ctx, poolID)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	release()

	// Burst of one: the second token inside the same second is refused even
	// though the concurrency slot was returned.
	if _, ok, _ := budgeter.TryAcquire(ctx, poolID); ok {
		t.Fatal("rate limiter should have refused the second acquire")
	}
}

func TestBudgeterSuspendedPoolHasZeroBudget(t *testing.T) {
	budgeter, _, poolID := newBudgetFixture(5, 100, enums.PoolSuspended)

	if _, ok, err := budgeter.TryAcquire(context.Background(), poolID); err != nil {
		t.Fatalf("TryAcquire: %v", err)
	} else if ok {
		t.Fatal("suspended pool granted budget")
	}
}

func TestBudgeterUnknownPool(t *testing.T) {
	budgeter := NewBudgeter(&fakePoolStore{pools: map[uuid.UUID]*models.DispatchPool{}}, time.Minute)

	if _, ok, err := budgeter.TryAcquire(context.Background(), uuid.New()); err == nil || ok {
		t.Fatalf("expected error for unknown pool, got ok=%v err=%v", ok, err)
	}
}

func TestBudgeterCachesPoolConfig(t *testing.T) {
	budgeter, store, poolID := newBudgetFixture(5, 1000, enums.PoolActive)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		release, ok, err := budgeter.TryAcquire(ctx, poolID)
		if err != nil || !ok {
			t.Fatalf("acquire %d: ok=%v err=%v", i, ok, err)
		}
		release()
	}
	if store.calls != 1 {
		t.Fatalf("expected one pool load within TTL, got %d", store.calls)
	}
}

func TestBudgeterServesLastKnownConfigOnRefreshFailure(t *testing.T) {
	budgeter, store, poolID := newBudgetFixture(5, 1000, enums.PoolActive)
	ctx := context.Background()

	if _, ok, err := budgeter.TryAcquire(ctx, poolID); err != nil || !ok {
		t.Fatalf("initial acquire: ok=%v err=%v", ok, err)
	}

	budgeter.ttl = 0
	store.err = context.DeadlineExceeded

	if _, ok, err := budgeter.TryAcquire(ctx, poolID); err != nil || !ok {
		t.Fatalf("acquire after failed refresh: ok=%v err=%v", ok, err)
	}
}
