package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// IndexedSet keeps the set of completely indexed block numbers for one
// chain in a redis set. SADD is idempotent and commutative, so
// concurrent backfill and tail workers can add members without
// coordination; membership is always grown by union, never replaced
// from a stale read.
type IndexedSet struct {
	rdb *redis.Client
	key string
}

// NewIndexedSet connects to redis and returns the set for a chain.
func NewIndexedSet(ctx context.Context, redisURL, chain string) (*IndexedSet, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &IndexedSet{
		rdb: rdb,
		key: fmt.Sprintf("blockscan:indexed:%s", chain),
	}, nil
}

func (s *IndexedSet) Close() error {
	return s.rdb.Close()
}

// Members returns the full set for O(1) gap computation.
func (s *IndexedSet) Members(ctx context.Context) (map[int64]struct{}, error) {
	members, err := s.rdb.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load indexed set: %w", err)
	}

	set := make(map[int64]struct{}, len(members))
	for _, member := range members {
		n, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt set member %q: %w", member, err)
		}
		set[n] = struct{}{}
	}
	return set, nil
}

// Add unions block numbers into the set.
func (s *IndexedSet) Add(ctx context.Context, numbers ...int64) error {
	if len(numbers) == 0 {
		return nil
	}
	members := make([]interface{}, 0, len(numbers))
	for _, n := range numbers {
		members = append(members, strconv.FormatInt(n, 10))
	}
	if err := s.rdb.SAdd(ctx, s.key, members...).Err(); err != nil {
		return fmt.Errorf("add to indexed set: %w", err)
	}
	return nil
}

// Size returns the set cardinality.
func (s *IndexedSet) Size(ctx context.Context) (int64, error) {
	return s.rdb.SCard(ctx, s.key).Result()
}

// Clear drops the set, forcing a full resync on the next pass.
func (s *IndexedSet) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}
