package report

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"artifact-compiler/internal/models"
)

const (
	defaultRedisPrefix = "failure_report:"
	maxResolveAttempts = 5
)

// RedisSink stores each report as a JSON string and indexes ids in a sorted
// set scored by creation time.
type RedisSink struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisSink returns a sink writing keys under prefix. A zero ttl keeps
// reports forever.
func NewRedisSink(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSink {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisSink{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSink) key(id string) string {
	return s.prefix + id
}

func (s *RedisSink) indexKey() string {
	return s.prefix + "index"
}

// Save writes the report and its index entry in one MULTI/EXEC. ZADD NX
// leaves the original index score in place when the id already exists.
func (s *RedisSink) Save(ctx context.Context, r *models.FailureReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal failure report: %w", err)
	}

	var stored *redis.BoolCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		stored = pipe.SetNX(ctx, s.key(r.ID), data, s.ttl)
		pipe.ZAddNX(ctx, s.indexKey(), redis.Z{
			Score:  float64(r.CreatedAt.UnixNano()),
			Member: r.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store failure report: %w", err)
	}
	if !stored.Val() {
		return ErrDuplicateReport
	}
	return nil
}

func (s *RedisSink) Get(ctx context.Context, id string) (*models.FailureReport, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load failure report: %w", err)
	}
	return decodeReport(data)
}

// Resolve rewrites the report inside a WATCH/MULTI transaction so concurrent
// resolutions cannot interleave.
func (s *RedisSink) Resolve(ctx context.Context, id, resolution string, at time.Time) (*models.FailureReport, error) {
	key := s.key(id)
	var out *models.FailureReport

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if stderrors.Is(err, redis.Nil) {
			return ErrReportNotFound
		}
		if err != nil {
			return err
		}
		current, err := decodeReport(data)
		if err != nil {
			return err
		}
		next, err := resolved(current, resolution, at)
		if err != nil {
			return err
		}
		updated, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		if err == nil {
			out = next
		}
		return err
	}

	for i := 0; i < maxResolveAttempts; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("resolve %s: %w", id, redis.TxFailedErr)
}

func (s *RedisSink) List(ctx context.Context, filter ListFilter) ([]*models.FailureReport, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list failure reports: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load failure reports: %w", err)
	}

	var out []*models.FailureReport
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			// expired or removed since indexing
			continue
		}
		r, err := decodeReport([]byte(str))
		if err != nil {
			return nil, err
		}
		if !filter.matches(r) {
			continue
		}
		out = append(out, r)
		if len(out) == filter.limit() {
			break
		}
	}
	return out, nil
}

func decodeReport(data []byte) (*models.FailureReport, error) {
	var r models.FailureReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode failure report: %w", err)
	}
	return &r, nil
}
