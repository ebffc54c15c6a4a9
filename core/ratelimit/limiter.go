package ratelimit

import (
	"context"
	"fmt"
	"time"

	"soundsketch/errs"
	"soundsketch/model"
)

// 各写路径使用的限流策略
const (
	// CommentUserMax 注册用户评论：每用户每 60 秒 10 条
	CommentUserMax    = 10
	CommentUserWindow = time.Minute

	// CommentAnonMax 匿名评论：每曲目每 60 秒 5 条
	CommentAnonMax    = 5
	CommentAnonWindow = time.Minute

	// UploadMax 版本上传：每用户每小时 5 次
	UploadMax    = 5
	UploadWindow = time.Hour
)

// CommentUserKey 注册用户评论限流键
func CommentUserKey(userID int64) string {
	return fmt.Sprintf("comment:user:%d", userID)
}

// CommentAnonKey 匿名评论限流键（按曲目）
func CommentAnonKey(trackID int64) string {
	return fmt.Sprintf("comment:anon:%d", trackID)
}

// UploadKey 版本上传限流键
func UploadKey(userID int64) string {
	return fmt.Sprintf("upload:user:%d", userID)
}

// Store 限流桶的持久化接口。Get 在键不存在时返回空桶。
type Store interface {
	Get(ctx context.Context, key string) (*model.RateLimitBucket, error)
	Put(ctx context.Context, bucket *model.RateLimitBucket) error
}

// Limiter 滑动窗口限流器。
//
// 读取与写回不是原子操作：同一个键上的并发准入可能短暂超出配置上限，
// 这是接受的尽力而为语义。需要严格保证时应改用原子计数/CAS，而不是
// 在这里加锁掩盖。
type Limiter struct {
	store Store
	now   func() time.Time // 可注入，便于测试
}

// NewLimiter 创建限流器。每个进程实例化一份，显式注入存储。
func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// Check 执行一次准入判定。窗口内事件数达到 maxRequests 时返回
// ErrRateLimited 且不修改桶；否则把本次时间戳写回（连同窗口内的旧事件）。
func (l *Limiter) Check(ctx context.Context, key string, maxRequests int, window time.Duration) error {
	now := l.now().UnixMilli()
	windowStart := now - window.Milliseconds()

	bucket, err := l.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read rate limit bucket %s: %w", key, err)
	}
	if bucket == nil {
		bucket = &model.RateLimitBucket{Key: key}
	}

	// 只保留窗口内的事件
	recent := bucket.Timestamps[:0]
	for _, ts := range bucket.Timestamps {
		if ts > windowStart {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= maxRequests {
		// 拒绝时不写回，被过滤掉的过期事件留待下次成功准入时清理
		return fmt.Errorf("%w: key %s exceeded %d per %s", errs.ErrRateLimited, key, maxRequests, window)
	}

	bucket.Timestamps = append(recent, now)
	if err := l.store.Put(ctx, bucket); err != nil {
		return fmt.Errorf("failed to persist rate limit bucket %s: %w", key, err)
	}
	return nil
}
