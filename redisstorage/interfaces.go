package redisstorage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage is the alert dedup cache: repeated alerts inside the window
// collapse into the first one.
type RedisStorage interface {
	// MarkAlert records the alert key for the window. It returns true when
	// the key was not present, meaning the alert should be sent.
	MarkAlert(ctx context.Context, key string, window time.Duration) (bool, error)
}

// RedisClient is the subset of the go-redis client the storage uses; both
// the single-node and the cluster client satisfy it.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}
