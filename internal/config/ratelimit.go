package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// Bucket is one token bucket shape: Capacity tokens, refilled by
// RefillTokens every RefillInterval.
type Bucket struct {
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
}

// RateLimitConfig configures the Redis token buckets in front of the API.
// Routes listed in CheckoutRoutes ("METHOD /path" as registered) create or
// verify gateway orders and draw from the tighter Checkout bucket; every
// other route uses Default.
type RateLimitConfig struct {
    Enabled        bool
    Default        Bucket
    Checkout       Bucket
    CheckoutRoutes []string
    TTL            time.Duration
    KeyStrategy    string
    Prefix         string
    Debug          bool
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.  Out of range values
// are clamped rather than rejected.
func LoadRateLimitConfig() RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled: envBool("RATE_LIMIT_ENABLED", true),
        Default: loadBucket("RATE_LIMIT", Bucket{Capacity: 20, RefillTokens: 1, RefillInterval: 3 * time.Second}),
        Checkout: loadBucket("RATE_LIMIT_CHECKOUT", Bucket{Capacity: 5, RefillTokens: 1, RefillInterval: 12 * time.Second}),
        CheckoutRoutes: splitList(envStr("RATE_LIMIT_CHECKOUT_ROUTES",
            "POST /v1/orders,POST /v1/payments/verify")),
        TTL:         envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy: strings.ToLower(envStr("RATE_LIMIT_KEY_STRATEGY", "user_route")),
        Prefix:      envStr("RATE_LIMIT_PREFIX", "rl"),
        Debug:       envBool("RATE_LIMIT_DEBUG", false),
    }
    // a bucket must survive long enough to refill from empty
    slowest := cfg.Default.RefillInterval
    if cfg.Checkout.RefillInterval > slowest {
        slowest = cfg.Checkout.RefillInterval
    }
    if cfg.TTL < 5*slowest {
        cfg.TTL = 5 * slowest
    }
    return cfg
}

// BucketFor returns the bucket serving route.
func (c RateLimitConfig) BucketFor(route string) (Bucket, bool) {
    for _, r := range c.CheckoutRoutes {
        if r == route {
            return c.Checkout, true
        }
    }
    return c.Default, false
}

func loadBucket(prefix string, def Bucket) Bucket {
    b := Bucket{
        Capacity:       envInt(prefix+"_CAPACITY", def.Capacity),
        RefillTokens:   envInt(prefix+"_REFILL_TOKENS", def.RefillTokens),
        RefillInterval: envDur(prefix+"_REFILL_INTERVAL", def.RefillInterval),
    }
    if b.Capacity < 1 {
        b.Capacity = 1
    }
    if b.RefillTokens < 1 {
        b.RefillTokens = 1
    }
    if b.RefillInterval <= 0 {
        b.RefillInterval = time.Second
    }
    return b
}

func envStr(k, d string) string {
    if v := os.Getenv(k); v != "" {
        return v
    }
    return d
}

func envBool(k string, d bool) bool {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    b, err := strconv.ParseBool(strings.ToLower(v))
    if err != nil {
        switch strings.ToLower(v) {
        case "yes", "on":
            return true
        case "no", "off":
            return false
        }
        return d
    }
    return b
}

func envInt(k string, d int) int {
    if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
        return n
    }
    return d
}

func envDur(k string, d time.Duration) time.Duration {
    if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
        return dur
    }
    return d
}
