package utils

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/rewardledger/config"
)

var (
	redisClient *redis.Client
	redisOnce   sync.Once
)

// GetRedis returns a singleton Redis client, or nil when Redis is disabled.
func GetRedis() *redis.Client {
	redisOnce.Do(func() {
		cfg := config.Get()
		if !cfg.RedisEnabled {
			return
		}
		redisClient = redis.NewClient(&redis.Options{
			Addr:         net.JoinHostPort(cfg.RedisHost, strconv.Itoa(cfg.RedisPort)),
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  3 * time.Second,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		})
		// Cache calls degrade to misses when Redis is down, so only warn here.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			L().Warnf("redis ping failed: %v", err)
		}
	})
	return redisClient
}
