package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/grantayeye/gamma-budget-planner/internal/common"
)

// NewRedisLimiter builds a limiter shared across API instances. Share links
// get posted to group chats; the public resolve endpoint is the one surface
// that needs protection from bursts.
func NewRedisLimiter(client *redis.Client, rate limiter.Rate, prefix string) (*limiter.Limiter, error) {
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: prefix,
	})
	if err != nil {
		return nil, err
	}
	return limiter.New(store, rate), nil
}

// Middleware enforces the limit per client IP. Limiter backend failures fail
// open; a Redis outage must not take the share links down with it.
func Middleware(l *limiter.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil {
				next.ServeHTTP(w, r)
				return
			}
			lctx, err := l.Get(r.Context(), common.ClientIP(r))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			headers := w.Header()
			headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))
			if lctx.Reached {
				common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
