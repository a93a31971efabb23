package middleware

import (
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/taskloop/taskloop/internal/request"
)

const defaultRatelimitRate = "10-S"

// RateLimit builds rate limiting middleware backed by Redis so limits hold
// across instances. rate uses limiter's formatted notation ("10-S",
// "100-M"). The limit key is the client IP.
func RateLimit(redisClient *redis.Client, rate string) (func(http.Handler) http.Handler, error) {
	if rate == "" {
		rate = defaultRatelimitRate
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	store, err := redisstore.NewStore(redisClient)
	if err != nil {
		return nil, err
	}
	return newRateLimitMiddleware(limiter.New(store, parsed)), nil
}

// RateLimitInMemory is RateLimit with a per-process store, for standalone
// deployments without Redis
func RateLimitInMemory(rate string) (func(http.Handler) http.Handler, error) {
	if rate == "" {
		rate = defaultRatelimitRate
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	return newRateLimitMiddleware(limiter.New(memorystore.NewStore(), parsed)), nil
}

func newRateLimitMiddleware(instance *limiter.Limiter) func(http.Handler) http.Handler {
	keyGetter := func(r *http.Request) string {
		return request.ClientIP(r)
	}
	mw := stdlibmw.NewMiddleware(instance, stdlibmw.WithKeyGetter(keyGetter))
	return mw.Handler
}
