package config

import (
    "strconv"
    "time"
)

// SeatCacheConfig controls the Redis read-through cache of occupied seats
// per show.  When Enabled is false or no Redis client is configured the
// cache is bypassed.  Entries are invalidated on every confirmation and
// cancellation, so TTL only bounds staleness after a missed invalidation.
type SeatCacheConfig struct {
    Enabled bool
    TTL     time.Duration
    Prefix  string
}

// LoadSeatCacheConfig reads SEAT_CACHE_* variables.  Defaults are used
// when variables are not set.
func LoadSeatCacheConfig() SeatCacheConfig {
    cfg := SeatCacheConfig{
        Enabled: envBool("SEAT_CACHE_ENABLED", true),
        TTL:     envDur("SEAT_CACHE_TTL", 15*time.Second),
        Prefix:  envStr("SEAT_CACHE_PREFIX", "seats"),
    }
    if cfg.TTL <= 0 {
        cfg.Enabled = false
    }
    return cfg
}

// RedisConfig holds connection settings for Redis.
type RedisConfig struct {
    Addr     string
    Password string
    DB       int
    TLS      bool
}

// LoadRedisConfig reads the Redis connection variables:
//   REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//   REDIS_ADDR – host:port shorthand, used when host/port are not both set
//   REDIS_PASSWORD – optional password
//   REDIS_DB – database number (default 0)
//   REDIS_TLS – enable TLS when "true" or "1"
func LoadRedisConfig() RedisConfig {
    addr := envStr("REDIS_ADDR", "localhost:6379")
    host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", "")
    if host != "" && port != "" {
        addr = host + ":" + port
    }
    db, err := strconv.Atoi(envStr("REDIS_DB", "0"))
    if err != nil {
        db = 0
    }
    return RedisConfig{
        Addr:     addr,
        Password: envStr("REDIS_PASSWORD", ""),
        DB:       db,
        TLS:      envBool("REDIS_TLS", false),
    }
}
