package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ExamStore holds exam configurations. Every configuration keeps its own id,
// so sessions started against an older exam still grade against the key they
// started with after the active exam was replaced.
type ExamStore interface {
	// Replace stores cfg under a fresh id and makes it the active exam.
	Replace(ctx context.Context, cfg *model.ExamConfig) (string, error)
	// Active returns a copy of the active exam or model.ErrNoActiveExam.
	Active(ctx context.Context) (*model.ExamConfig, error)
	// GetByID returns a copy of a stored exam or model.ErrExamNotFound.
	GetByID(ctx context.Context, id string) (*model.ExamConfig, error)
}

// prepare validates cfg and returns a detached copy carrying its new id.
func prepare(cfg *model.ExamConfig, now time.Time) (*model.ExamConfig, error) {
	if cfg == nil || len(cfg.Definition.Questions) == 0 {
		return nil, model.ErrInvalidSolution
	}
	if len(cfg.SolutionKey) != len(cfg.Definition.Questions) {
		return nil, model.ErrInvalidSolution
	}
	out := cfg.Clone()
	out.Definition.ID = uuid.NewString()
	out.CreatedAt = now.UTC()
	return out, nil
}

// MemoryExamStore keeps exams in process memory.
type MemoryExamStore struct {
	mu       sync.RWMutex
	exams    map[string]*model.ExamConfig
	activeID string
	now      func() time.Time
}

// NewMemoryExamStore creates an empty store.
func NewMemoryExamStore() *MemoryExamStore {
	return &MemoryExamStore{
		exams: make(map[string]*model.ExamConfig),
		now:   time.Now,
	}
}

func (s *MemoryExamStore) Replace(_ context.Context, cfg *model.ExamConfig) (string, error) {
	stored, err := prepare(cfg, s.now())
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams[stored.Definition.ID] = stored
	s.activeID = stored.Definition.ID
	return stored.Definition.ID, nil
}

func (s *MemoryExamStore) Active(_ context.Context) (*model.ExamConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeID == "" {
		return nil, model.ErrNoActiveExam
	}
	return s.exams[s.activeID].Clone(), nil
}

func (s *MemoryExamStore) GetByID(_ context.Context, id string) (*model.ExamConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.exams[id]
	if !ok {
		return nil, model.ErrExamNotFound
	}
	return cfg.Clone(), nil
}

// RedisExamStore keeps exams in Redis so that several server instances share
// the active exam. The candidate payload, the solution key and the examiner
// metadata live under separate keys; only the key hash ever holds answers.
type RedisExamStore struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisExamStore creates a store backed by rdb.
func NewRedisExamStore(rdb *redis.Client) *RedisExamStore {
	return &RedisExamStore{rdb: rdb, now: time.Now}
}

func (s *RedisExamStore) Replace(ctx context.Context, cfg *model.ExamConfig) (string, error) {
	stored, err := prepare(cfg, s.now())
	if err != nil {
		return "", err
	}
	id := stored.Definition.ID

	payloadJSON, err := json.Marshal(stored.Definition)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	answerKey := make(map[string]interface{}, len(stored.SolutionKey))
	for i, answer := range stored.SolutionKey {
		answerKey[strconv.Itoa(i)] = answer
	}

	// Everything for the new exam lands before exam:active points at it.
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.ExamPayloadKey(id), payloadJSON, 0)
	pipe.HSet(ctx, config.CacheKey.ExamAnswerKey(id), answerKey)
	pipe.HSet(ctx, config.CacheKey.ExamMetaKey(id), map[string]interface{}{
		"examiner_contact": stored.ExaminerContact,
		"created_at":       stored.CreatedAt.Format(time.RFC3339Nano),
	})
	pipe.Set(ctx, config.CacheKey.ActiveExamKey(), id, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store exam in redis: %w", err)
	}
	return id, nil
}

func (s *RedisExamStore) Active(ctx context.Context) (*model.ExamConfig, error) {
	id, err := s.rdb.Get(ctx, config.CacheKey.ActiveExamKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrNoActiveExam
		}
		return nil, fmt.Errorf("get active exam: %w", err)
	}
	cfg, err := s.GetByID(ctx, id)
	if errors.Is(err, model.ErrExamNotFound) {
		return nil, model.ErrNoActiveExam
	}
	return cfg, err
}

func (s *RedisExamStore) GetByID(ctx context.Context, id string) (*model.ExamConfig, error) {
	pipe := s.rdb.Pipeline()
	payloadCmd := pipe.Get(ctx, config.CacheKey.ExamPayloadKey(id))
	keyCmd := pipe.HGetAll(ctx, config.CacheKey.ExamAnswerKey(id))
	metaCmd := pipe.HGetAll(ctx, config.CacheKey.ExamMetaKey(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get exam %s: %w", id, err)
	}

	data, err := payloadCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrExamNotFound
		}
		return nil, fmt.Errorf("get payload: %w", err)
	}

	cfg := &model.ExamConfig{}
	if err := json.Unmarshal(data, &cfg.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	fields := keyCmd.Val()
	if len(fields) != len(cfg.Definition.Questions) {
		return nil, fmt.Errorf("exam %s: %w", id, model.ErrInvalidSolution)
	}
	cfg.SolutionKey = make(model.SolutionKey, len(fields))
	for field, answer := range fields {
		i, err := strconv.Atoi(field)
		if err != nil || i < 0 || i >= len(fields) {
			return nil, fmt.Errorf("exam %s: bad key field %q: %w", id, field, model.ErrInvalidSolution)
		}
		cfg.SolutionKey[i] = answer
	}

	meta := metaCmd.Val()
	cfg.ExaminerContact = meta["examiner_contact"]
	if created, err := time.Parse(time.RFC3339Nano, meta["created_at"]); err == nil {
		cfg.CreatedAt = created
	}
	return cfg, nil
}
