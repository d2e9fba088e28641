package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ArchiveQueue buffers graded reports in Redis until the archive worker
// copies them into PostgreSQL.
type ArchiveQueue struct {
	rdb *redis.Client
	key string
}

// NewArchiveQueue creates a queue on the results list.
func NewArchiveQueue(rdb *redis.Client) *ArchiveQueue {
	return &ArchiveQueue{rdb: rdb, key: config.WorkerKey.PersistResultsQueue}
}

// Enqueue appends r to the queue.
func (q *ArchiveQueue) Enqueue(ctx context.Context, r *model.ResultReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("enqueue report: %w", err)
	}
	return nil
}

// Len returns the number of reports waiting.
func (q *ArchiveQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
