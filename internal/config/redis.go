package config

// Redis holds the shared rate-limit counters so that several API instances
// enforce one budget per client address.  If the server cannot be reached
// at startup the limiter falls back to an in-process counter.

import (
    "context"
    "crypto/tls"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisConfig lists connection settings for the Redis server.
type RedisConfig struct {
    Addr     string `yaml:"addr"`
    Password string `yaml:"password"`
    DB       int    `yaml:"db"`
    TLS      bool   `yaml:"tls"`
}

// loadRedisEnv applies:
//   REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//   REDIS_ADDR – host:port shorthand (host/port win when both are set)
//   REDIS_PASSWORD – optional password
//   REDIS_DB – database number (default 0)
//   REDIS_TLS – enable TLS when "true" or "1"
func loadRedisEnv(def RedisConfig) RedisConfig {
    host := envStr("REDIS_HOST", "")
    port := envStr("REDIS_PORT", "")
    def.Addr = envStr("REDIS_ADDR", def.Addr)
    if host != "" && port != "" {
        def.Addr = host + ":" + port
    }
    def.Password = envStr("REDIS_PASSWORD", def.Password)
    def.DB = envInt("REDIS_DB", def.DB)
    if v := envStr("REDIS_TLS", ""); v != "" {
        def.TLS = strings.EqualFold(v, "true") || v == "1"
    }
    return def
}

// NewRedisClient instantiates a Redis client from cfg.  The returned client
// is nil if the server does not answer a ping within two seconds.
func NewRedisClient(cfg RedisConfig) *redis.Client {
    if cfg.Addr == "" {
        return nil
    }
    var tlsConf *tls.Config
    if cfg.TLS {
        tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(&redis.Options{
        Addr:      cfg.Addr,
        Password:  cfg.Password,
        DB:        cfg.DB,
        TLSConfig: tlsConf,
    })
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil
    }
    return client
}
