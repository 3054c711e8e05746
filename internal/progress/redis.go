package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-reel-backend/internal/domain"
)

const (
	defaultKeyPrefix = "reelgen:process:"
	maxMergeRetries  = 32
)

// RedisStore persists one JSON document per process under KeyPrefix+processID.
// Merge uses WATCH/MULTI so concurrent writers (orchestrator and a cancel
// request) never drop each other's fields.
type RedisStore struct {
	rdb       redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
}

// RedisOption customizes a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the default key prefix.
func WithKeyPrefix(p string) RedisOption {
	return func(s *RedisStore) {
		if p != "" {
			s.keyPrefix = p
		}
	}
}

// WithTTL sets an expiry refreshed on every merge. Zero keeps keys forever.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:       rdb,
		keyPrefix: defaultKeyPrefix,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DialRedis parses a redis:// URL and verifies connectivity.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) key(id string) string { return s.keyPrefix + id }

// Read implements Store.
func (s *RedisStore) Read(ctx context.Context, processID string) (domain.GenerationProcess, error) {
	raw, err := s.rdb.Get(ctx, s.key(processID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.GenerationProcess{}, &NotFoundError{ProcessID: processID}
	}
	if err != nil {
		return domain.GenerationProcess{}, fmt.Errorf("read process: %w", err)
	}
	var p domain.GenerationProcess
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.GenerationProcess{}, fmt.Errorf("decode process: %w", err)
	}
	return p, nil
}

// Merge implements Store.
func (s *RedisStore) Merge(ctx context.Context, processID string, u domain.ProcessUpdate) (domain.GenerationProcess, error) {
	key := s.key(processID)
	var merged domain.GenerationProcess

	txf := func(tx *redis.Tx) error {
		cur := domain.NewProcess(processID)
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &cur); err != nil {
				return fmt.Errorf("decode process: %w", err)
			}
		}
		merged = cur.Apply(u, s.now())
		buf, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, s.ttl)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxMergeRetries; i++ {
		err = s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		if merged.ProcessID == "" {
			merged = domain.NewProcess(processID).Apply(u, s.now())
		}
		return merged, fmt.Errorf("merge process: %w", err)
	}
	return merged, nil
}

var _ Store = (*RedisStore)(nil)
