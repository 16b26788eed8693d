package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTracking(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("ICT", 7*3600))
	assert.Equal(t, "MR-20260101200405-000042", FormatTracking("MR", at, 42))
	assert.Equal(t, "MR-20260101200405-000001", FormatTracking("MR", at, 1_000_001))
}

func TestValidPrefix(t *testing.T) {
	assert.True(t, validPrefix("SHOP42"))
	assert.True(t, validPrefix("ABCDEFGHIJKL"))
	assert.False(t, validPrefix(""))
	assert.False(t, validPrefix("ABCDEFGHIJKLM"))
	assert.False(t, validPrefix("A-B"))
	assert.False(t, validPrefix("ร้าน"))
}

func TestCounterSequenceIsUniqueUnderConcurrency(t *testing.T) {
	var s CounterSequence
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[int64]bool{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.Next(context.Background())
			require.NoError(t, err)
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}

func TestRedisSequenceIncrements(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	a := NewRedisSequence(rdb, "")
	b := NewRedisSequence(rdb, "")
	ctx := context.Background()

	n1, err := a.Next(ctx)
	require.NoError(t, err)
	n2, err := b.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n1)
	assert.Equal(t, int64(2), n2, "replicas share the counter")
}
