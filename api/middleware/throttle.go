package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/torresline/eventgate/api/responses"
	pkgerrors "github.com/torresline/eventgate/pkg/errors"
	"github.com/torresline/eventgate/pkg/logger"
)

// RateLimiter counts requests inside a fixed window and reports whether the
// caller is still under its budget.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Throttle applies a per-client fixed-window rate limit. Anchor principals
// without a client scope share the "anchor" bucket. A nil limiter or a
// non-positive limit disables throttling. Limiter failures fail open so a
// Redis outage cannot take ingestion down with it.
func Throttle(limiter RateLimiter, limit int64, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			scope := "anchor"
			if clientID := ClientIDFromContext(ctx); clientID != nil {
				scope = clientID.String()
			}

			allowed, count, err := limiter.FixedWindowAllow(ctx, scope, limit, window)
			if err != nil {
				logg.Warn(logg.WithField(ctx, "scope", scope), "rate limiter unavailable, failing open")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				ctx = logg.WithFields(ctx, map[string]any{"scope": scope, "count": count})
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "ingest rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
