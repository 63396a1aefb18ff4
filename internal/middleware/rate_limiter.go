package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"tarkostock/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const rateKeyPrefix = "ratelimit:"

// RateLimiter limits each client IP to limit requests per fixed window.
// With rdb set the counters live in redis and are shared by every replica;
// when redis is nil or failing the replica-local counters are used.
func RateLimiter(rdb *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	local := newLocalWindows(window)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		count, windowEnd, err := redisWindow(c.Request.Context(), rdb, ip, now, window)
		if err != nil {
			log.Debug().Err(err).Msg("rate limiter: redis unavailable, using local window")
		}
		if rdb == nil || err != nil {
			count, windowEnd = local.hit(ip, now)
		}

		if count > limit {
			c.Header("Retry-After", strconv.Itoa(int(time.Until(windowEnd).Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.New("too many requests, retry shortly"))
			return
		}
		c.Next()
	}
}

// redisWindow counts one hit in the window containing now.
func redisWindow(ctx context.Context, rdb *redis.Client, ip string, now time.Time, window time.Duration) (int, time.Time, error) {
	if rdb == nil {
		return 0, time.Time{}, nil
	}
	start := now.Truncate(window)
	key := rateKeyPrefix + ip + ":" + strconv.FormatInt(start.Unix(), 10)

	pipe := rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, err
	}
	return int(incr.Val()), start.Add(window), nil
}

// localWindows is the in-process fallback. Expired entries are dropped
// lazily, at most once per window, so no goroutine is needed.
type localWindows struct {
	window time.Duration

	mu        sync.Mutex
	entries   map[string]*rateEntry
	nextPurge time.Time
}

type rateEntry struct {
	count     int
	windowEnd time.Time
}

func newLocalWindows(window time.Duration) *localWindows {
	return &localWindows{window: window, entries: make(map[string]*rateEntry)}
}

func (l *localWindows) hit(ip string, now time.Time) (int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.nextPurge) {
		for k, e := range l.entries {
			if now.After(e.windowEnd) {
				delete(l.entries, k)
			}
		}
		l.nextPurge = now.Add(l.window)
	}

	e, ok := l.entries[ip]
	if !ok || now.After(e.windowEnd) {
		e = &rateEntry{windowEnd: now.Add(l.window)}
		l.entries[ip] = e
	}
	e.count++
	return e.count, e.windowEnd
}
