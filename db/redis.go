package db

import (
	"context"
	"fmt"
	"time"

	"soundsketch/config"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient 创建 Redis 客户端并验证连接。
// 限流桶等共享状态存放于 Redis，客户端作为显式依赖注入各组件。
func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
