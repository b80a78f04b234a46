package middleware

import (
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/cinema-ticket-checkout/internal/config"
    "github.com/iliyamo/cinema-ticket-checkout/internal/logger"
)

// tokenBucketScript atomically refills and takes one token.  It returns
// {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])
    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    if interval_ms > 0 then
        local intervals = math.floor(math.max(0, now_ms - last_refill) / interval_ms)
        if intervals > 0 then
            tokens = math.min(capacity, tokens + intervals * refill_tokens)
            last_refill = last_refill + intervals * interval_ms
        end
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
    end

    redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
    redis.call('EXPIRE', key, ttl_seconds)
    return { allowed, tokens, retry_after_ms }
`)

// NewTokenBucket limits requests with token buckets kept in Redis, one per
// key (see buildRateKey).  Checkout routes draw from their own, smaller
// bucket.  Without Redis,
// or when Redis errors, requests pass through unlimited.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *logger.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    if log == nil {
        log = logger.Discard()
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            route := c.Request().Method + " " + c.Path()
            bucket, checkout := cfg.BucketFor(route)
            key := buildRateKey(cfg, c, checkout)

            ctx := c.Request().Context()
            vals, err := tokenBucketScript.Run(ctx, rdb, []string{key},
                time.Now().UnixMilli(),
                bucket.Capacity,
                bucket.RefillTokens,
                bucket.RefillInterval.Milliseconds(),
                int64(cfg.TTL/time.Second),
            ).Result()
            if err != nil {
                log.WithError(err).Warn("rate limit unavailable", "key", key)
                return next(c)
            }
            d, ok := parseBucketResult(vals)
            if !ok {
                log.Warn("rate limit script returned unexpected result", "key", key, "result", fmt.Sprintf("%#v", vals))
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(bucket.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if !d.allowed {
                secs := retryAfterSeconds(d.retryMs)
                h.Set("Retry-After", strconv.Itoa(secs))
                log.Debug("rate limited", "key", key, "retry_ms", d.retryMs)
                return c.JSON(http.StatusTooManyRequests, echo.Map{
                    "error":       "rate limit exceeded",
                    "retry_after": secs,
                })
            }
            return next(c)
        }
    }
}

type bucketDecision struct {
    allowed   bool
    remaining int64
    retryMs   int64
}

// parseBucketResult decodes the script reply.  Redis returns Lua numbers
// as int64.
func parseBucketResult(vals interface{}) (bucketDecision, bool) {
    arr, ok := vals.([]interface{})
    if !ok || len(arr) != 3 {
        return bucketDecision{}, false
    }
    allowed, ok1 := arr[0].(int64)
    remaining, ok2 := arr[1].(int64)
    retry, ok3 := arr[2].(int64)
    if !ok1 || !ok2 || !ok3 {
        return bucketDecision{}, false
    }
    return bucketDecision{allowed: allowed == 1, remaining: remaining, retryMs: retry}, true
}

func retryAfterSeconds(ms int64) int {
    if ms <= 0 {
        return 0
    }
    return int(math.Ceil(float64(ms) / 1000.0))
}

// buildRateKey derives the bucket key from the configured strategy:
// ip, user, ip_route, user_route, or all three when unrecognised.
// Checkout buckets get their own namespace so they never share tokens
// with browsing.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context, checkout bool) string {
    parts := []string{cfg.Prefix}
    if checkout {
        parts = append(parts, "checkout")
    }
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    uid := userKey(c)
    route := c.Request().Method + " " + c.Path()

    switch cfg.KeyStrategy {
    case "ip":
        parts = append(parts, "ip", ip)
    case "user":
        parts = append(parts, "user", uid)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "user_route":
        parts = append(parts, "user", uid, "route", route)
    default:
        parts = append(parts, "ip", ip, "user", uid, "route", route)
    }
    return strings.Join(parts, ":")
}
