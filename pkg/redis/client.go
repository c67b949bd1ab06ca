package redis

import (
	"github.com/redis/go-redis/v9"

	"github.com/Mayankdaya/CodeClash-sub000/config"
)

// NewClient builds the shared client used by the matchmaking store. Pub/sub
// watches hold dedicated connections, so the pool floor matters more here
// than in a plain request/response workload.
func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:                  cfg.Addr,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		MaxRetries:            cfg.MaxRetries,
		PoolSize:              cfg.PoolSize,
		MinIdleConns:          cfg.MinIdleConns,
		ClientName:            "clashd",
		ContextTimeoutEnabled: true,
	})

	return client, nil
}
