package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Alvaro1251/Learnify/pkg/clientip"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// RateLimitWindow is 120 seconds
	RateLimitWindow = 120 * time.Second
	// RateLimitMaxRequests is the maximum number of requests allowed in the window
	RateLimitMaxRequests = 120
	// RateLimitKeyPrefix is the Redis key prefix for rate limiting
	RateLimitKeyPrefix = "ratelimit:"
)

// RedisRateLimiter is a fixed-window per-IP limiter shared across server
// instances through Redis. It fails open when Redis errors.
type RedisRateLimiter struct {
	rdb        *redis.Client
	max        int64
	window     time.Duration
	trustProxy bool
	log        *zap.Logger
}

func NewRedisRateLimiter(rdb *redis.Client, trustProxy bool, log *zap.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{
		rdb:        rdb,
		max:        RateLimitMaxRequests,
		window:     RateLimitWindow,
		trustProxy: trustProxy,
		log:        log,
	}
}

func (l *RedisRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.rdb == nil {
			next.ServeHTTP(w, r)
			return
		}
		ip := clientip.RealClientIP(r, l.trustProxy)
		key := RateLimitKeyPrefix + ip

		count, err := l.hit(r.Context(), key)
		if err != nil {
			l.log.Warn("rate limit check failed, allowing request", zap.String("ip", ip), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		remaining := l.max - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(l.max, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > l.max {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// hit counts one request. The counter and its TTL are read in one
// transaction; a counter left without a TTL (say, an EXPIRE lost after the
// first hit) gets one on the next request instead of blocking the IP forever.
func (l *RedisRateLimiter) hit(ctx context.Context, key string) (int64, error) {
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		ttl = p.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if ttl.Val() < 0 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return 0, err
		}
	}
	return incr.Val(), nil
}
