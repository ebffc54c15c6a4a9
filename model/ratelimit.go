package model

// RateLimitBucket 滑动窗口限流桶。Timestamps 为毫秒级时间戳，
// 插入顺序即时间顺序。持久化形态：{"key": ..., "timestamps": [...]}。
type RateLimitBucket struct {
	Key        string  `json:"key"`
	Timestamps []int64 `json:"timestamps"`
}
