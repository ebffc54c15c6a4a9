package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"soundsketch/errs"
)

// newTestLimiter returns a limiter over an isolated memory store with a
// controllable clock.
func newTestLimiter(start time.Time) (*Limiter, *time.Time) {
	now := start
	l := NewLimiter(NewMemoryStore())
	l.now = func() time.Time { return now }
	return l, &now
}

func TestCheckAdmitsUpToMax(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.Check(ctx, "k", 5, time.Minute); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i+1, err)
		}
	}

	err := l.Check(ctx, "k", 5, time.Minute)
	if !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("6th call: got %v, want ErrRateLimited", err)
	}
}

func TestCheckWindowSlides(t *testing.T) {
	l, now := newTestLimiter(time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.Check(ctx, "k", 5, time.Minute); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i+1, err)
		}
	}
	if err := l.Check(ctx, "k", 5, time.Minute); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// 第一批事件滑出 60s 窗口后重新放行
	*now = now.Add(61 * time.Second)
	if err := l.Check(ctx, "k", 5, time.Minute); err != nil {
		t.Fatalf("after window slide: unexpected error: %v", err)
	}
}

func TestCheckRejectionLeavesBucketUnmodified(t *testing.T) {
	store := NewMemoryStore()
	l := NewLimiter(store)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Check(ctx, "k", 3, time.Minute); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	before, _ := store.Get(ctx, "k")
	if err := l.Check(ctx, "k", 3, time.Minute); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	after, _ := store.Get(ctx, "k")

	if len(after.Timestamps) != len(before.Timestamps) {
		t.Errorf("rejected check mutated bucket: %d -> %d timestamps",
			len(before.Timestamps), len(after.Timestamps))
	}
}

func TestCheckKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.Check(ctx, "a", 5, time.Minute); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := l.Check(ctx, "a", 5, time.Minute); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("key a: expected ErrRateLimited, got %v", err)
	}
	if err := l.Check(ctx, "b", 5, time.Minute); err != nil {
		t.Fatalf("key b should be unaffected, got %v", err)
	}
}

func TestAuthenticatedCommentPolicy(t *testing.T) {
	// 注册用户评论：60 秒内前 10 条放行，第 11 条拒绝
	l, _ := newTestLimiter(time.Unix(1_700_000_000, 0))
	ctx := context.Background()
	key := CommentUserKey(42)

	for i := 0; i < 11; i++ {
		err := l.Check(ctx, key, CommentUserMax, CommentUserWindow)
		if i < 10 && err != nil {
			t.Fatalf("comment %d: unexpected error: %v", i+1, err)
		}
		if i == 10 && !errors.Is(err, errs.ErrRateLimited) {
			t.Fatalf("comment 11: got %v, want ErrRateLimited", err)
		}
	}
}
