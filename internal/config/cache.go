package config

import (
    "strings"
    "time"
)

// CacheConfig defines settings for the catalog response cache.  Only the
// public event listing and detail routes go through it; per-user routes are
// never cached.  When Enabled is false or no Redis client is configured,
// caching is disabled.
type CacheConfig struct {
    Enabled         bool
    Methods         map[string]bool
    TTL             time.Duration
    AvailabilityTTL time.Duration // lifetime of the advisory tickets_available figure
    Prefix          string
    MaxBodyBytes    int
}

// LoadCacheConfig reads environment variables to build a CacheConfig.  Defaults
// are used when variables are not set.  All methods are upper-cased.
func LoadCacheConfig() CacheConfig {
    return CacheConfig{
        Enabled:         envBool("CACHE_ENABLED", true),
        Methods:         parseMethods(envStr("CACHE_METHODS", "GET")),
        TTL:             envDur("CACHE_TTL", 30*time.Second),
        AvailabilityTTL: envDur("CACHE_AVAILABILITY_TTL", 15*time.Second),
        Prefix:          envStr("CACHE_PREFIX", "cache"),
        MaxBodyBytes:    envInt("CACHE_MAX_BODY_BYTES", 1<<20),
    }
}

func parseMethods(s string) map[string]bool {
    m := map[string]bool{}
    for _, p := range splitList(strings.ToUpper(s)) {
        m[p] = true
    }
    return m
}

func splitList(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}
