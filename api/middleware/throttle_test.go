package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/torresline/eventgate/pkg/logger"
)

type fakeLimiter struct {
	allowed bool
	err     error
	scopes  []string
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, _ int64, _ time.Duration) (bool, int64, error) {
	f.scopes = append(f.scopes, scope)
	return f.allowed, 1, f.err
}

func throttleHandler(limiter RateLimiter, limit int64, called *bool) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test"})
	return Throttle(limiter, limit, time.Minute, logg)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*called = true
		}),
	)
}

func TestThrottleScopesByClient(t *testing.T) {
	limiter := &fakeLimiter{allowed: true}
	called := false
	handler := throttleHandler(limiter, 10, &called)

	clientID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), "svc", &clientID, false))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Fatal("allowed request should reach handler")
	}
	if len(limiter.scopes) != 1 || limiter.scopes[0] != clientID.String() {
		t.Fatalf("expected client-scoped bucket, got %v", limiter.scopes)
	}
}

func TestThrottleAnchorSharesBucket(t *testing.T) {
	limiter := &fakeLimiter{allowed: true}
	called := false
	handler := throttleHandler(limiter, 10, &called)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), "admin", nil, true))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(limiter.scopes) != 1 || limiter.scopes[0] != "anchor" {
		t.Fatalf("expected anchor bucket, got %v", limiter.scopes)
	}
}

func TestThrottleRejectsOverBudget(t *testing.T) {
	limiter := &fakeLimiter{allowed: false}
	called := false
	handler := throttleHandler(limiter, 1, &called)

	clientID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), "svc", &clientID, false))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Fatal("over-budget request should not reach handler")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestThrottleFailsOpenOnLimiterError(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	called := false
	handler := throttleHandler(limiter, 1, &called)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	if !called {
		t.Fatal("limiter failure should fail open")
	}
}

func TestThrottleDisabledWithoutLimiter(t *testing.T) {
	called := false
	handler := throttleHandler(nil, 10, &called)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	if !called {
		t.Fatal("nil limiter should disable throttling")
	}

	called = false
	handler = throttleHandler(&fakeLimiter{allowed: false}, 0, &called)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	if !called {
		t.Fatal("zero limit should disable throttling")
	}
}
