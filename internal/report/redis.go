package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// RedisDispatcher publishes reports on the results PubSub channel, where the
// examiner's live monitor picks them up.
type RedisDispatcher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisDispatcher creates a RedisDispatcher.
func NewRedisDispatcher(rdb *redis.Client) *RedisDispatcher {
	return &RedisDispatcher{rdb: rdb, channel: config.CacheKey.ResultChannel()}
}

func (d *RedisDispatcher) Name() string { return "redis" }

func (d *RedisDispatcher) Dispatch(ctx context.Context, r *model.ResultReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := d.rdb.Publish(ctx, d.channel, data).Err(); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	return nil
}
