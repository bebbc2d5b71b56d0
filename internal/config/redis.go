package config

// This file defines a Redis client constructor for the application. Redis
// is the C1 Hot-State Store and the C6 fan-out bus backend; both ride the
// same client. If connection fails during startup the caller should treat
// that as fatal, unlike the teacher's original cache/rate-limit use where a
// nil client degraded gracefully — here Redis is load-bearing truth, not an
// optimization.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient instantiates a Redis client from the resolved Config and
// pings it with a short timeout before returning.
func NewRedisClient(cfg Config) (*redis.Client, error) {
	var tlsConf *tls.Config
	if cfg.RedisTLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}
