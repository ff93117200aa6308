package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// SetupTestRedis returns a Redis client for one test. By default it talks to
// an in-process miniredis server owned by the test. When
// LEARNIFY_TEST_REDIS_URI is set the test runs against that server instead;
// it is shared between packages, so tests must use keys of their own, and
// the test is skipped when it is not reachable.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	uri := os.Getenv("LEARNIFY_TEST_REDIS_URI")
	if uri == "" {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return rdb
	}

	opt, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatalf("parse LEARNIFY_TEST_REDIS_URI: %v", err)
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("redis not available: %v", err)
	}

	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
