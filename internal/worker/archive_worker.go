package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ResultStore is the write side of the results archive.
type ResultStore interface {
	CopyReports(ctx context.Context, reports []*model.ResultReport) (int64, error)
	InsertReport(ctx context.Context, rep *model.ResultReport) error
}

// ArchiveWorker drains the results queue into PostgreSQL in batches.
type ArchiveWorker struct {
	store ResultStore
	rdb   *redis.Client
	queue string
	log   zerolog.Logger

	// backoff is slept after a Redis error or a requeue.
	backoff time.Duration
}

func NewArchiveWorker(store ResultStore, rdb *redis.Client, log zerolog.Logger) *ArchiveWorker {
	return &ArchiveWorker{
		store:   store,
		rdb:     rdb,
		queue:   config.WorkerKey.PersistResultsQueue,
		log:     log.With().Str("component", "archive_worker").Logger(),
		backoff: 2 * time.Second,
	}
}

// Start blocks until ctx is done, then flushes what it still holds.
func (w *ArchiveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ArchiveWorker started")

	buffer := make([]*model.ResultReport, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flush(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, w.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, backing off")
			w.sleep(ctx)
			continue
		}
		if len(result) < 2 {
			continue
		}

		rep, ok := w.decode(result[1])
		if !ok {
			continue
		}
		buffer = append(buffer, rep)
	}
}

// decode parses one queue item. Malformed items can never succeed and are
// dropped.
func (w *ArchiveWorker) decode(data string) (*model.ResultReport, bool) {
	var rep model.ResultReport
	if err := json.Unmarshal([]byte(data), &rep); err != nil {
		w.log.Error().Err(err).Str("data", data).Msg("Discarding malformed report")
		return nil, false
	}
	if rep.ReportID == "" || rep.ExamID == "" {
		w.log.Error().Str("data", data).Msg("Discarding report without id")
		return nil, false
	}
	return &rep, true
}

// flush tries one COPY for the batch and falls back to row-by-row inserts.
func (w *ArchiveWorker) flush(ctx context.Context, batch []*model.ResultReport) {
	n, err := w.store.CopyReports(ctx, batch)
	if err == nil {
		w.log.Debug().Int64("count", n).Msg("Reports archived")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk copy failed, attempting row-by-row recovery")
	w.fallback(ctx, batch)
}

func (w *ArchiveWorker) fallback(ctx context.Context, batch []*model.ResultReport) {
	requeue := make([]*model.ResultReport, 0)

	for _, rep := range batch {
		err := w.store.InsertReport(ctx, rep)
		switch {
		case err == nil:
		case repository.IsDataError(err):
			w.log.Error().Err(err).Str("report_id", rep.ReportID).Msg("Dropping report rejected by the database")
		default:
			w.log.Error().Err(err).Str("report_id", rep.ReportID).Msg("Insert failed, requeueing")
			requeue = append(requeue, rep)
		}
	}

	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *ArchiveWorker) requeue(ctx context.Context, items []*model.ResultReport) {
	// The shutdown flush runs on a cancelled parent, so push independently.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	pipe := w.rdb.Pipeline()
	for _, rep := range items {
		data, err := json.Marshal(rep)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, w.queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue reports. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed reports")
	w.sleep(ctx)
}

func (w *ArchiveWorker) sleep(ctx context.Context) {
	t := time.NewTimer(w.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *ArchiveWorker) shutdown(buffer []*model.ResultReport) {
	if len(buffer) == 0 {
		return
	}
	w.log.Info().Int("count", len(buffer)).Msg("Worker stopping, flushing remaining buffer")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flush(ctx, buffer)
}
