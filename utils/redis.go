package utils

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	redisClient *redis.Client
	redisMu     sync.Mutex
)

// connectRedis establishes a connection to Redis.
func connectRedis(redisURL string) error {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	redisMu.Lock()
	redisClient = client
	redisMu.Unlock()

	return nil
}

// ManageRedisConnection handles Redis connection and reconnection.
// Run it in its own goroutine; it never returns.
func ManageRedisConnection(redisURL string) {
	for {
		if err := connectRedis(redisURL); err != nil {
			log.Printf("[REDIS] Failed to connect: %v. Retrying in 5 seconds...", err)
			time.Sleep(5 * time.Second)
			continue
		}
		log.Println("[REDIS] Connected successfully")

		// go-redis reconnects internally; a periodic ping detects a client
		// that lost its server for good and forces a fresh client.
		for {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := GetRedisClient().Ping(ctx).Err()
			cancel()

			if err != nil {
				log.Printf("[REDIS] Connection lost: %v. Reconnecting...", err)
				break
			}
			time.Sleep(10 * time.Second)
		}
	}
}

// GetRedisClient returns the current Redis client, safely. May return nil
// before the first successful connection; callers must tolerate that.
func GetRedisClient() *redis.Client {
	redisMu.Lock()
	defer redisMu.Unlock()
	return redisClient
}
