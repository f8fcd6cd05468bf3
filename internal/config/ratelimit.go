package config

import (
    "os"
    "strconv"
    "time"
)

// RateLimitConfig describes the fixed-window limiter applied to every
// inbound request.  Max requests are allowed per key within Window.
type RateLimitConfig struct {
    Enabled     bool          `yaml:"enabled"`
    Max         int           `yaml:"max"`
    Window      time.Duration `yaml:"window"`
    KeyStrategy string        `yaml:"key_strategy"`
    Prefix      string        `yaml:"prefix"`
    Debug       bool          `yaml:"debug"`
}

func DefaultRateLimit() RateLimitConfig {
    return RateLimitConfig{
        Enabled:     true,
        Max:         100,
        Window:      15 * time.Minute,
        KeyStrategy: "ip",
        Prefix:      "rl",
    }
}

func loadRateLimitEnv(def RateLimitConfig) RateLimitConfig {
    def.Enabled = envBool("RATE_LIMIT_ENABLED", def.Enabled)
    def.Max = envInt("RATE_LIMIT_MAX", def.Max)
    def.Window = envDur("RATE_LIMIT_WINDOW", def.Window)
    if ms := envInt("RATE_LIMIT_WINDOW_MS", 0); ms > 0 {
        def.Window = time.Duration(ms) * time.Millisecond
    }
    def.KeyStrategy = envStr("RATE_LIMIT_KEY_STRATEGY", def.KeyStrategy)
    def.Prefix = envStr("RATE_LIMIT_PREFIX", def.Prefix)
    def.Debug = envBool("RATE_LIMIT_DEBUG", def.Debug)
    return def
}

func (c *RateLimitConfig) normalize() {
    if c.Max < 1 { c.Max = 1 }
    if c.Window <= 0 { c.Window = 15 * time.Minute }
    if c.Prefix == "" { c.Prefix = "rl" }
    if c.KeyStrategy == "" { c.KeyStrategy = "ip" }
}

func envStr(k, d string) string { if v := os.Getenv(k); v != "" { return v }; return d }
func envBool(k string, d bool) bool {
    v := os.Getenv(k)
    if v == "" { return d }
    switch v {
    case "1","true","TRUE","True","yes","YES","on","ON": return true
    case "0","false","FALSE","False","no","NO","off","OFF": return false
    }
    return d
}
func envInt(k string, d int) int {
    v := os.Getenv(k); if v == "" { return d }
    if n, err := strconv.Atoi(v); err == nil { return n }
    return d
}
func envDur(k string, d time.Duration) time.Duration {
    v := os.Getenv(k); if v == "" { return d }
    if dur, err := time.ParseDuration(v); err == nil { return dur }
    return d
}
