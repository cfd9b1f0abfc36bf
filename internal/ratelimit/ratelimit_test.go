package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// setupTestRedis creates an in-memory Redis server for testing
func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
		DB:   0,
	})

	// Test connection
	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		t.Fatalf("Failed to connect to test Redis: %v", err)
	}

	cleanup := func() {
		redisClient.Close()
		mr.Close()
	}

	return redisClient, cleanup
}

func TestTokenBucket_Allow(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	// Create token bucket with 5 tokens, refill 5 per minute
	bucket := NewTokenBucket(redisClient, 5, 5)

	ctx := context.Background()
	callerID := "test_user"
	action := "upload"

	// Consume tokens up to the limit, checking the remaining count as we go
	for i := 0; i < 5; i++ {
		allowed, remaining, err := bucket.Allow(ctx, callerID, action)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !allowed {
			t.Fatalf("Expected request %d to be allowed", i+1)
		}
		if remaining != int64(4-i) {
			t.Fatalf("Expected %d remaining after request %d, got %d", 4-i, i+1, remaining)
		}
	}

	// Test that the 6th request is denied
	allowed, remaining, err := bucket.Allow(ctx, callerID, action)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("Expected request to be denied after limit reached")
	}
	if remaining != 0 {
		t.Fatalf("Expected 0 remaining tokens, got %d", remaining)
	}
}

func TestTokenBucket_GetRemaining(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	bucket := NewTokenBucket(redisClient, 10, 10)

	ctx := context.Background()
	callerID := "test_user_2"
	action := "upload"

	// Initially should have full capacity
	remaining, err := bucket.GetRemaining(ctx, callerID, action)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if remaining != 10 {
		t.Fatalf("Expected 10 remaining tokens, got %d", remaining)
	}

	// Consume 3 tokens
	for i := 0; i < 3; i++ {
		bucket.Allow(ctx, callerID, action)
	}

	// Should have 7 remaining, and checking must not consume
	remaining, err = bucket.GetRemaining(ctx, callerID, action)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if remaining != 7 {
		t.Fatalf("Expected 7 remaining tokens, got %d", remaining)
	}
}

func TestTokenBucket_ActionsAreIndependent(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	bucket := NewTokenBucket(redisClient, 2, 2)

	ctx := context.Background()
	callerID := "test_user_4"

	// Exhaust the upload bucket
	for i := 0; i < 2; i++ {
		bucket.Allow(ctx, callerID, "upload")
	}
	allowed, _, err := bucket.Allow(ctx, callerID, "upload")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("Expected upload bucket to be exhausted")
	}

	// A different action still has its own bucket
	allowed, _, err = bucket.Allow(ctx, callerID, "delete")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("Expected independent bucket for a different action")
	}
}

func TestTokenBucket_Reset(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	bucket := NewTokenBucket(redisClient, 5, 5)

	ctx := context.Background()
	callerID := "test_user_3"
	action := "upload"

	// Consume all tokens
	for i := 0; i < 5; i++ {
		bucket.Allow(ctx, callerID, action)
	}

	// Reset the bucket
	err := bucket.Reset(ctx, callerID, action)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Should be able to consume tokens again
	remaining, err := bucket.GetRemaining(ctx, callerID, action)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if remaining != 5 {
		t.Fatalf("Expected 5 remaining tokens after reset, got %d", remaining)
	}
}
