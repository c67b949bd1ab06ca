package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mayankdaya/CodeClash-sub000/config"
	pkgRedis "github.com/Mayankdaya/CodeClash-sub000/pkg/redis"
)

const pingTimeout = 5 * time.Second

// Connect builds the client and verifies the server is reachable before any
// queue entry or signaling record is written through it.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	cli, err := pkgRedis.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := cli.Ping(pingCtx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Println("Connected to Redis.")

	return cli, nil
}

func Disconnect(cli *redis.Client) {
	if cli == nil {
		return
	}

	if err := cli.Close(); err != nil {
		log.Printf("Closing Redis connection: %v\n", err)
		return
	}

	log.Println("Connection to Redis closed.")
}
