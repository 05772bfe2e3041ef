package redisstorage

import (
	"context"
	"time"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/log"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const alertKeyPrefix = "nft_bridge_alert_"

// redisStorageImpl implements RedisStorage interface
type redisStorageImpl struct {
	client RedisClient
}

// NewRedisStorage connects the dedup cache.
func NewRedisStorage(cfg Config) (RedisStorage, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis address is empty")
	}
	var client RedisClient
	if cfg.IsClusterMode {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.Addrs,
			Username: cfg.Username,
			Password: cfg.Password,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addrs[0],
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}
	res, err := client.Ping(context.Background()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "cannot connect to redis server")
	}
	log.Debugf("redis health check done, result: %v", res)
	return &redisStorageImpl{client: client}, nil
}

// MarkAlert sets the key with the window TTL if absent. SetNX makes the
// first sender win across processes.
func (s *redisStorageImpl) MarkAlert(ctx context.Context, key string, window time.Duration) (bool, error) {
	if s == nil || s.client == nil {
		return false, errors.New("redis client is nil")
	}
	fresh, err := s.client.SetNX(ctx, alertKeyPrefix+key, 1, window).Result()
	if err != nil {
		return false, errors.Wrap(err, "MarkAlert redis SetNX error")
	}
	return fresh, nil
}
