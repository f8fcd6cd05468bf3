package middleware

import (
    "context"
    "math"
    "net/http"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog/log"

    "github.com/iliyamo/securevault/internal/config"
    "github.com/iliyamo/securevault/internal/metrics"
)

// windowCounter counts hits on key inside the current fixed window and
// reports how long until the window resets.
type windowCounter interface {
    Hit(ctx context.Context, key string) (count int64, reset time.Duration, err error)
}

// INCR then PEXPIRE on the first hit, atomically, so every instance sharing
// the Redis server enforces the same window.
var fixedWindowScript = redis.NewScript(`
    local n = redis.call('INCR', KEYS[1])
    if n == 1 then
        redis.call('PEXPIRE', KEYS[1], ARGV[1])
    end
    local ttl = redis.call('PTTL', KEYS[1])
    if ttl < 0 then
        redis.call('PEXPIRE', KEYS[1], ARGV[1])
        ttl = tonumber(ARGV[1])
    end
    return { n, ttl }
`)

type redisWindow struct {
    rdb    redis.Scripter
    window time.Duration
}

func (r *redisWindow) Hit(ctx context.Context, key string) (int64, time.Duration, error) {
    vals, err := fixedWindowScript.Run(ctx, r.rdb, []string{key}, r.window.Milliseconds()).Int64Slice()
    if err != nil {
        return 0, 0, err
    }
    if len(vals) != 2 {
        return 0, 0, redis.Nil
    }
    return vals[0], time.Duration(vals[1]) * time.Millisecond, nil
}

type bucket struct {
    count   int64
    resetAt time.Time
}

// memoryWindow is the in-process counter used when Redis is not configured
// or a Redis call fails.  Expired buckets are swept at most once a window.
type memoryWindow struct {
    mu        sync.Mutex
    window    time.Duration
    buckets   map[string]*bucket
    nextSweep time.Time
    now       func() time.Time
}

func newMemoryWindow(window time.Duration) *memoryWindow {
    return &memoryWindow{window: window, buckets: make(map[string]*bucket), now: time.Now}
}

func (m *memoryWindow) Hit(_ context.Context, key string) (int64, time.Duration, error) {
    now := m.now()
    m.mu.Lock()
    defer m.mu.Unlock()

    if now.After(m.nextSweep) {
        for k, b := range m.buckets {
            if !now.Before(b.resetAt) {
                delete(m.buckets, k)
            }
        }
        m.nextSweep = now.Add(m.window)
    }

    b := m.buckets[key]
    if b == nil || !now.Before(b.resetAt) {
        b = &bucket{resetAt: now.Add(m.window)}
        m.buckets[key] = b
    }
    b.count++
    return b.count, b.resetAt.Sub(now), nil
}

// NewRateLimiter returns a fixed-window limiter allowing cfg.Max requests
// per key every cfg.Window.  Counters live in Redis when rdb is non-nil and
// in process memory otherwise; a failing Redis call falls back to memory
// for that request rather than failing open.
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client, m *metrics.Metrics) echo.MiddlewareFunc {
    if !cfg.Enabled {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    var primary windowCounter
    if rdb != nil {
        primary = &redisWindow{rdb: rdb, window: cfg.Window}
    }
    return rateLimit(cfg, primary, newMemoryWindow(cfg.Window), m)
}

func rateLimit(cfg config.RateLimitConfig, primary, fallback windowCounter, m *metrics.Metrics) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            ctx := c.Request().Context()

            var (
                count int64
                reset time.Duration
                err   error
            )
            if primary != nil {
                count, reset, err = primary.Hit(ctx, key)
                if err != nil && cfg.Debug {
                    log.Warn().Err(err).Str("key", key).Msg("ratelimit: redis error, using memory counter")
                }
            }
            if primary == nil || err != nil {
                count, reset, _ = fallback.Hit(ctx, key)
            }

            remaining := int64(cfg.Max) - count
            if remaining < 0 {
                remaining = 0
            }
            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }

            if count > int64(cfg.Max) {
                secs := int(math.Ceil(reset.Seconds()))
                if secs < 1 {
                    secs = 1
                }
                h.Set("Retry-After", strconv.Itoa(secs))
                m.RecordRateLimited()
                return c.JSON(http.StatusTooManyRequests, echo.Map{
                    "error":      "Too many requests from this IP, please try again later.",
                    "retryAfter": secs,
                })
            }
            return next(c)
        }
    }
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    parts := []string{cfg.Prefix}
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    route := c.Request().Method + " " + c.Path()

    switch strings.ToLower(cfg.KeyStrategy) {
    case "user":
        parts = append(parts, "user", userKey(c))
    case "route":
        parts = append(parts, "route", route)
    case "ip_user":
        parts = append(parts, "ip", ip, "user", userKey(c))
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    default: // "ip"
        parts = append(parts, "ip", ip)
    }
    return strings.Join(parts, ":")
}
