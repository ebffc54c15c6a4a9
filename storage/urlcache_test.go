package storage

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// fakeSigner counts issuance and returns a distinct URL per call.
type fakeSigner struct {
	calls int
	fail  error
}

func (f *fakeSigner) IssueDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.calls++
	return fmt.Sprintf("https://signed.example/%s?n=%d", key, f.calls), nil
}

func TestURLCacheHit(t *testing.T) {
	signer := &fakeSigner{}
	cache := NewURLCache(signer)

	now := time.Now()
	cache.now = func() time.Time { return now }

	first, err := cache.Get(context.Background(), "tracks/1/a-stream.mp3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cache.Get(context.Background(), "tracks/1/a-stream.mp3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("cached URL changed: %q vs %q", first, second)
	}
	if signer.calls != 1 {
		t.Errorf("signer called %d times, want 1", signer.calls)
	}
}

func TestURLCacheExpiry(t *testing.T) {
	signer := &fakeSigner{}
	cache := NewURLCache(signer)

	now := time.Now()
	cache.now = func() time.Time { return now }

	first, _ := cache.Get(context.Background(), "k")

	// 54 分钟后仍命中
	now = now.Add(54 * time.Minute)
	again, _ := cache.Get(context.Background(), "k")
	if again != first {
		t.Errorf("URL re-issued before the 55 minute refresh point")
	}

	// 过了 55 分钟重新签发
	now = now.Add(2 * time.Minute)
	refreshed, _ := cache.Get(context.Background(), "k")
	if refreshed == first {
		t.Errorf("URL not re-issued after expiry")
	}
	if signer.calls != 2 {
		t.Errorf("signer called %d times, want 2", signer.calls)
	}
}

func TestURLCacheKeysAreIndependent(t *testing.T) {
	signer := &fakeSigner{}
	cache := NewURLCache(signer)

	a, _ := cache.Get(context.Background(), "a")
	b, _ := cache.Get(context.Background(), "b")
	if a == b {
		t.Errorf("distinct keys returned the same URL %q", a)
	}
	if signer.calls != 2 {
		t.Errorf("signer called %d times, want 2", signer.calls)
	}
}

func TestURLCacheSignerError(t *testing.T) {
	signer := &fakeSigner{fail: fmt.Errorf("signing backend down")}
	cache := NewURLCache(signer)

	if _, err := cache.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected error from signer, got nil")
	}
}
