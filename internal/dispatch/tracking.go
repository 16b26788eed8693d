package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	maxPrefixLen     = 12
	trackingTimeFmt  = "20060102150405"
	trackingSeqSpace = 1_000_000
)

// Sequence hands out tracking number sequence values.
type Sequence interface {
	Next(ctx context.Context) (int64, error)
}

// CounterSequence is a process-local sequence.
type CounterSequence struct {
	n atomic.Int64
}

func (s *CounterSequence) Next(context.Context) (int64, error) { return s.n.Add(1), nil }

// RedisSequence shares one sequence across replicas through INCR.
type RedisSequence struct {
	rdb *redis.Client
	key string
}

func NewRedisSequence(rdb *redis.Client, key string) *RedisSequence {
	if key == "" {
		key = "milkrun:tracking:seq"
	}
	return &RedisSequence{rdb: rdb, key: key}
}

func (s *RedisSequence) Next(ctx context.Context) (int64, error) {
	return s.rdb.Incr(ctx, s.key).Result()
}

// FormatTracking renders <prefix>-<yyyymmddHHMMSS>-<6 digit seq>.
func FormatTracking(prefix string, at time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%06d", prefix, at.UTC().Format(trackingTimeFmt), seq%trackingSeqSpace)
}

func validPrefix(p string) bool {
	if p == "" || len(p) > maxPrefixLen {
		return false
	}
	for _, r := range p {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
