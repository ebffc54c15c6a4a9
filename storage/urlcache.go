package storage

import (
	"context"
	"sync"
	"time"
)

// DownloadSigner 下载 URL 签发接口，由 PresignService 实现。
type DownloadSigner interface {
	IssueDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// 缓存有效期设为 55 分钟，比下载 URL 的 1 小时有效期提前刷新，
// 避免把临近过期的 URL 交给播放器。
const urlCacheTTL = 55 * time.Minute

type cachedURL struct {
	url       string
	expiresAt time.Time
}

// URLCache 按对象键缓存下载 URL，避免重复签发。
// 仅按墙钟自然过期，不做主动淘汰；并发未命中时同一个键可能被重复签发，
// 签发是幂等的，无害。
type URLCache struct {
	signer DownloadSigner

	mu      sync.RWMutex
	entries map[string]cachedURL

	now func() time.Time // 可注入，便于测试
}

// NewURLCache 创建 URL 缓存。每个进程实例化一份，作为显式依赖注入。
func NewURLCache(signer DownloadSigner) *URLCache {
	return &URLCache{
		signer:  signer,
		entries: make(map[string]cachedURL),
		now:     time.Now,
	}
}

// Get 返回 key 的下载 URL，缓存未命中或已过期时通过签发服务重新获取。
func (c *URLCache) Get(ctx context.Context, key string) (string, error) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.url, nil
	}

	url, err := c.signer.IssueDownload(ctx, key, DefaultDownloadTTL)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = cachedURL{url: url, expiresAt: now.Add(urlCacheTTL)}
	c.mu.Unlock()

	return url, nil
}
