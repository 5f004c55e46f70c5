package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

const resolveRetries = 5

// RedisStore keeps requests as JSON strings with a sorted-set index on
// creation time. Decisions use an optimistic WATCH transaction.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewRedisStoreWithClient(client, opts.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "reelgate"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":approval:" + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":approvals:created"
}

// score uses microseconds so float64 keeps the value exact.
func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func (s *RedisStore) Put(ctx context.Context, req *Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode approval: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(req.ID), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: score(req.CreatedAt), Member: req.ID})
		return nil
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Request, error) {
	return s.get(ctx, s.client, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c getter, id string) (*Request, error) {
	raw, err := c.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decode approval %s: %w", id, err)
	}
	return &req, nil
}

func (s *RedisStore) Resolve(ctx context.Context, id string, approved bool, extra map[string]any, at time.Time) (*Request, error) {
	var resolved *Request

	txf := func(tx *redis.Tx) error {
		req, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return ErrAlreadyDecided
		}

		req.Status = StatusRejected
		if approved {
			req.Status = StatusApproved
		}
		req.Arguments = mergeArgs(req.Arguments, extra)
		decided := at
		req.DecidedAt = &decided

		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key(id), data, 0)
			return nil
		})
		if err == nil {
			resolved = req
		}
		return err
	}

	for i := 0; i < resolveRetries; i++ {
		err := s.client.Watch(ctx, txf, s.key(id))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return resolved, nil
	}
	return nil, fmt.Errorf("resolve approval %s: too much contention", id)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	return err
}

func (s *RedisStore) ListPending(ctx context.Context) ([]*Request, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Request{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*Request, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var req Request
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			continue
		}
		if req.Status == StatusPending {
			out = append(out, &req)
		}
	}
	return out, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.indexKey()).Result()
	return int(n), err
}

// RemoveOlderThan removes requests created strictly before cutoff. Index
// scores have microsecond resolution, so entries sharing cutoff's
// microsecond are compared on their stored nanosecond timestamp.
func (s *RedisStore) RemoveOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	micro := strconv.FormatInt(cutoff.UnixMicro(), 10)

	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + micro,
	}).Result()
	if err != nil {
		return nil, err
	}

	boundary, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: micro,
		Max: micro,
	}).Result()
	if err != nil {
		return nil, err
	}
	for _, id := range boundary {
		req, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if req.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 {
		return nil, nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, s.key(id))
			pipe.ZRem(ctx, s.indexKey(), id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
