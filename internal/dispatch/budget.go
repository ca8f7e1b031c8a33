package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/torresline/eventgate/pkg/db/models"
	"github.com/torresline/eventgate/pkg/enums"
	"github.com/torresline/eventgate/pkg/metrics"
)

const defaultPoolRefreshTTL = 30 * time.Second

// poolStore loads pool configuration for the budgeter.
type poolStore interface {
	FindPoolByID(ctx context.Context, id uuid.UUID) (*models.DispatchPool, error)
}

// poolBudget tracks the live budget of one pool: a semaphore for concurrency
// and a token bucket for rate. Both are advisory gates in front of the
// conditional claim, never a correctness mechanism.
type poolBudget struct {
	mu        sync.Mutex
	code      string
	sem       chan struct{}
	limiter   *rate.Limiter
	suspended bool
	fetchedAt time.Time
}

func newPoolBudget(pool *models.DispatchPool, now time.Time) *poolBudget {
	b := &poolBudget{}
	b.apply(pool, now)
	return b
}

// apply refreshes configuration in place, preserving held slots across a
// concurrency resize.
func (b *poolBudget) apply(pool *models.DispatchPool, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	concurrency := pool.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	ratePerSec := pool.RateLimit
	if ratePerSec < 1 {
		ratePerSec = 1
	}

	if b.sem == nil || cap(b.sem) != concurrency {
		held := 0
		if b.sem != nil {
			held = len(b.sem)
		}
		next := make(chan struct{}, concurrency)
		if held > concurrency {
			held = concurrency
		}
		for i := 0; i < held; i++ {
			next <- struct{}{}
		}
		b.sem = next
	}

	if b.limiter == nil {
		b.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	} else {
		b.limiter.SetLimit(rate.Limit(ratePerSec))
		b.limiter.SetBurst(ratePerSec)
	}

	b.code = pool.Code
	b.suspended = pool.Status == enums.PoolSuspended
	b.fetchedAt = now
}

func (b *poolBudget) codeLabel() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.code
}

// tryAcquire takes one concurrency slot and one rate token without blocking.
// The returned release func gives the slot back; rate tokens are consumed.
func (b *poolBudget) tryAcquire() (func(), bool) {
	b.mu.Lock()
	if b.suspended {
		b.mu.Unlock()
		return nil, false
	}
	sem := b.sem
	limiter := b.limiter
	b.mu.Unlock()

	select {
	case sem <- struct{}{}:
	default:
		return nil, false
	}

	if !limiter.Allow() {
		select {
		case <-sem:
		default:
		}
		return nil, false
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			select {
			case <-sem:
			default:
			}
		})
	}
	return release, true
}

func (b *poolBudget) stale(now time.Time, ttl time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Sub(b.fetchedAt) >= ttl
}

// Budgeter hands out per-pool delivery budget to workers in one process. Pool
// configuration is re-read lazily once the refresh TTL elapses, so rate,
// concurrency, and suspension changes take effect without a restart.
type Budgeter struct {
	mu    sync.Mutex
	store poolStore
	ttl   time.Duration
	met   *metrics.DispatchMetrics
	pools map[uuid.UUID]*poolBudget
}

// NewBudgeter builds a budgeter over the pool store.
func NewBudgeter(store poolStore, refreshTTL time.Duration) *Budgeter {
	if refreshTTL <= 0 {
		refreshTTL = defaultPoolRefreshTTL
	}
	return &Budgeter{
		store: store,
		ttl:   refreshTTL,
		pools: make(map[uuid.UUID]*poolBudget),
	}
}

// WithMetrics attaches the in-flight gauge. Call before handing the budgeter
// to workers.
func (b *Budgeter) WithMetrics(m *metrics.DispatchMetrics) *Budgeter {
	b.met = m
	return b
}

// TryAcquire attempts to take budget from the pool without blocking. On
// success the release func must be called when the delivery attempt finishes.
// A SUSPENDED or exhausted pool yields ok=false with no error.
func (b *Budgeter) TryAcquire(ctx context.Context, poolID uuid.UUID) (func(), bool, error) {
	budget, err := b.budgetFor(ctx, poolID)
	if err != nil {
		return nil, false, err
	}
	release, ok := budget.tryAcquire()
	if !ok {
		return nil, false, nil
	}
	if b.met != nil {
		code := budget.codeLabel()
		b.met.AddInFlight(code, 1)
		inner := release
		var once sync.Once
		release = func() {
			inner()
			once.Do(func() { b.met.AddInFlight(code, -1) })
		}
	}
	return release, true, nil
}

func (b *Budgeter) budgetFor(ctx context.Context, poolID uuid.UUID) (*poolBudget, error) {
	now := time.Now()

	b.mu.Lock()
	budget, exists := b.pools[poolID]
	b.mu.Unlock()

	if exists && !budget.stale(now, b.ttl) {
		return budget, nil
	}

	pool, err := b.store.FindPoolByID(ctx, poolID)
	if err != nil {
		if exists {
			// Keep serving the last known configuration when a refresh fails.
			return budget, nil
		}
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if current, ok := b.pools[poolID]; ok {
		current.apply(pool, now)
		return current, nil
	}
	budget = newPoolBudget(pool, now)
	b.pools[poolID] = budget
	return budget, nil
}
