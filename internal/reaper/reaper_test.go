package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/geyang/zaku/internal/codec"
	"github.com/geyang/zaku/internal/queue"
	"github.com/geyang/zaku/internal/store"
	"github.com/geyang/zaku/pkg/log"
)

func TestReaperReclaimsExpiredClaim(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedisStore(client)
	engine := queue.New(s, "zaku-reaper-test", 10000, log.NewNop())

	ctx := context.Background()
	require.NoError(t, engine.InitQueue(ctx, "q1"))
	taskID, err := engine.Add(ctx, "q1", codec.Map().Build(), "")
	require.NoError(t, err)

	ttl := 0.05
	res, err := engine.Take(ctx, "q1", &ttl)
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, taskID, res.TaskID)

	r := New(engine, 20*time.Millisecond, log.NewNop())
	runCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	go r.Run(runCtx)

	require.Eventually(t, func() bool {
		res, err := engine.Take(ctx, "q1", nil)
		if err != nil || !res.Found {
			return false
		}
		return res.TaskID == taskID
	}, 2*time.Second, 10*time.Millisecond)
}
