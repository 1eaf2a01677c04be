package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchPacerPauses(t *testing.T) {
	p := NewBatchPacer(10 * time.Millisecond)
	start := time.Now()
	require.NoError(t, p.Pause(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestBatchPacerHonorsContext(t *testing.T) {
	p := NewBatchPacer(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Pause(ctx), context.DeadlineExceeded)
}

func TestTokenBucketPacerTakesTokens(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	p := NewTokenBucketPacer(client, "watchdog:pace:test", 60)

	// A fresh bucket holds a full minute of tokens.
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Pause(context.Background()))
	}
	assert.True(t, srv.Exists("watchdog:pace:test"))
}

func TestTokenBucketPacerHonorsContextWhenDrained(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	p := NewTokenBucketPacer(client, "watchdog:pace:test", 1)

	require.NoError(t, p.Pause(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Pause(ctx), context.DeadlineExceeded)
}
