package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"soundsketch/model"

	"github.com/redis/go-redis/v9"
)

// redis 中桶记录的键前缀与兜底过期时间。过期时间只是防止废弃键无限堆积，
// 远大于任何限流窗口，不参与窗口语义。
const (
	redisKeyPrefix = "ratelimit:"
	redisBucketTTL = 24 * time.Hour
)

// RedisStore 把限流桶以 JSON 形态存入 Redis：{"key": ..., "timestamps": [...]}。
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建 Redis 限流存储
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*model.RateLimitBucket, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket from redis: %w", err)
	}

	var bucket model.RateLimitBucket
	if err := json.Unmarshal([]byte(data), &bucket); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bucket: %w", err)
	}
	return &bucket, nil
}

func (s *RedisStore) Put(ctx context.Context, bucket *model.RateLimitBucket) error {
	data, err := json.Marshal(bucket)
	if err != nil {
		return fmt.Errorf("failed to marshal bucket: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+bucket.Key, data, redisBucketTTL).Err(); err != nil {
		return fmt.Errorf("failed to set bucket in redis: %w", err)
	}
	return nil
}

// MemoryStore 进程内限流存储，测试和单机部署使用。
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*model.RateLimitBucket
}

// NewMemoryStore 创建内存限流存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*model.RateLimitBucket)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*model.RateLimitBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[key]
	if !ok {
		return nil, nil
	}
	// 返回副本，避免调用方修改未写回的状态
	cp := &model.RateLimitBucket{Key: bucket.Key, Timestamps: append([]int64(nil), bucket.Timestamps...)}
	return cp, nil
}

func (s *MemoryStore) Put(ctx context.Context, bucket *model.RateLimitBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buckets[bucket.Key] = &model.RateLimitBucket{
		Key:        bucket.Key,
		Timestamps: append([]int64(nil), bucket.Timestamps...),
	}
	return nil
}
