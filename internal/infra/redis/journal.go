package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vietddude/backstop/internal/infra/storage"
)

const (
	DefaultJournalTTL  = 24 * time.Hour
	DefaultJournalSize = 10000
)

// JournalRepo implements JournalRepository using Redis. Entries are kept as
// JSON strings with a TTL and indexed by time in a sorted set.
type JournalRepo struct {
	rdb     *redis.Client
	prefix  string
	ttl     time.Duration
	maxSize int64
}

// NewJournalRepo creates a Redis-backed failure journal.
func NewJournalRepo(client *Client, prefix string, ttl time.Duration) *JournalRepo {
	if prefix == "" {
		prefix = "backstop"
	}
	if ttl <= 0 {
		ttl = DefaultJournalTTL
	}
	return &JournalRepo{
		rdb:     client.rdb,
		prefix:  prefix,
		ttl:     ttl,
		maxSize: DefaultJournalSize,
	}
}

// Key helpers
func (r *JournalRepo) indexKey() string {
	return fmt.Sprintf("%s:failures", r.prefix)
}

func (r *JournalRepo) entryKey(cid string) string {
	return fmt.Sprintf("%s:failure:%s", r.prefix, cid)
}

// Record stores the entry and trims the index to its maximum size.
func (r *JournalRepo) Record(ctx context.Context, e storage.JournalEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.entryKey(e.CID), data, r.ttl)
	pipe.ZAdd(ctx, r.indexKey(), redis.Z{
		Score:  float64(e.OccurredAt.UnixMilli()),
		Member: e.CID,
	})
	// Keep only the newest maxSize members
	pipe.ZRemRangeByRank(ctx, r.indexKey(), 0, -r.maxSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}

// Get retrieves the entry for cid.
func (r *JournalRepo) Get(ctx context.Context, cid string) (*storage.JournalEntry, error) {
	data, err := r.rdb.Get(ctx, r.entryKey(cid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failure: %w", err)
	}

	var e storage.JournalEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal journal entry: %w", err)
	}
	return &e, nil
}

// Recent returns up to limit entries, newest first. Expired entries still
// present in the index are skipped and removed.
func (r *JournalRepo) Recent(ctx context.Context, limit int) ([]storage.JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	cids, err := r.rdb.ZRevRange(ctx, r.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}
	if len(cids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(cids))
	for i, cid := range cids {
		keys[i] = r.entryKey(cid)
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget failed: %w", err)
	}

	out := make([]storage.JournalEntry, 0, len(values))
	var expired []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			expired = append(expired, cids[i])
			continue
		}
		var e storage.JournalEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal journal entry: %w", err)
		}
		out = append(out, e)
	}
	if len(expired) > 0 {
		r.rdb.ZRem(ctx, r.indexKey(), expired...)
	}
	return out, nil
}

// DeleteOlderThan drops index members scored before threshold along with
// their entries. Entries also expire on their own through the TTL.
func (r *JournalRepo) DeleteOlderThan(ctx context.Context, threshold time.Time) (int, error) {
	upper := strconv.FormatInt(threshold.UnixMilli()-1, 10)
	cids, err := r.rdb.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{Min: "-inf", Max: upper}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore failed: %w", err)
	}
	if len(cids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(cids))
	for i, cid := range cids {
		keys[i] = r.entryKey(cid)
	}
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRemRangeByScore(ctx, r.indexKey(), "-inf", upper)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to prune failures: %w", err)
	}
	return len(cids), nil
}

var _ storage.JournalRepository = (*JournalRepo)(nil)
