// internal/historian/historian_test.go
package historian

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jason-s-yu/scoretracker/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu        sync.Mutex
	batches   [][]cache.GameActionRecord
	abandoned []string
	failNext  bool
}

func (f *fakeSink) InsertGameActions(_ context.Context, records []cache.GameActionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("db down")
	}
	f.batches = append(f.batches, records)
	return nil
}

func (f *fakeSink) MarkGameAbandoned(_ context.Context, gameID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned = append(f.abandoned, gameID)
	return nil
}

func (f *fakeSink) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setup(t *testing.T, opts Options) (*cache.Client, *fakeSink, *Service) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	sink := &fakeSink{}
	return cache.NewClient(rdb, opts.QueueName), sink, New(rdb, sink, opts, quietLogger())
}

func TestServiceDrainsQueue(t *testing.T) {
	client, sink, svc := setup(t, Options{
		BatchSize:     2,
		FlushInterval: 20 * time.Millisecond,
		PopTimeout:    100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	for i := 1; i <= 3; i++ {
		require.NoError(t, client.PublishGameAction(context.Background(), cache.GameActionRecord{
			GameID:        "g1",
			ActionIndex:   i,
			ActorPlayerID: 1,
			ActionType:    "submit_score",
			ActionPayload: map[string]interface{}{"score": 100, "status": "active"},
		}))
	}

	assert.Eventually(t, func() bool { return sink.total() == 3 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("historian did not stop")
	}
}

func TestHandlePayloadFlushesFullBatch(t *testing.T) {
	_, sink, svc := setup(t, Options{BatchSize: 2})
	ctx := context.Background()

	svc.handlePayload(ctx, `{"game_id":"g1","action_index":1,"action_type":"start_game"}`)
	assert.Equal(t, 1, svc.Pending())
	assert.Equal(t, 0, sink.total())

	svc.handlePayload(ctx, `{"game_id":"g1","action_index":2,"action_type":"submit_score"}`)
	assert.Equal(t, 0, svc.Pending())
	assert.Equal(t, 2, sink.total())
}

func TestHandlePayloadSkipsGarbage(t *testing.T) {
	_, _, svc := setup(t, Options{})
	svc.handlePayload(context.Background(), "not json")
	svc.handlePayload(context.Background(), `{"action_index":1}`)
	assert.Equal(t, 0, svc.Pending())
}

func TestFailedFlushIsRetried(t *testing.T) {
	_, sink, svc := setup(t, Options{BatchSize: 10})
	ctx := context.Background()
	sink.failNext = true

	svc.handlePayload(ctx, `{"game_id":"g1","action_index":1,"action_type":"start_game"}`)
	svc.Flush(ctx)
	assert.Equal(t, 1, svc.Pending())

	svc.Flush(ctx)
	assert.Equal(t, 0, svc.Pending())
	assert.Equal(t, 1, sink.total())
}

func TestSweepInactive(t *testing.T) {
	_, sink, svc := setup(t, Options{Inactivity: time.Minute})
	ctx := context.Background()

	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }
	svc.handlePayload(ctx, `{"game_id":"stale","action_index":1,"action_type":"start_game","action_payload":{"status":"active"}}`)
	svc.handlePayload(ctx, `{"game_id":"done","action_index":1,"action_type":"start_game","action_payload":{"status":"active"}}`)
	svc.handlePayload(ctx, `{"game_id":"done","action_index":2,"action_type":"end_game","action_payload":{"status":"finished"}}`)

	svc.now = func() time.Time { return start.Add(30 * time.Second) }
	svc.SweepInactive(ctx)
	assert.Empty(t, sink.abandoned)

	svc.now = func() time.Time { return start.Add(2 * time.Minute) }
	svc.SweepInactive(ctx)
	assert.Equal(t, []string{"stale"}, sink.abandoned)

	// already handled, not marked twice
	svc.SweepInactive(ctx)
	assert.Len(t, sink.abandoned, 1)
}

func TestLateRecordDoesNotReviveFinishedGame(t *testing.T) {
	_, sink, svc := setup(t, Options{Inactivity: time.Minute})
	ctx := context.Background()

	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }
	svc.handlePayload(ctx, `{"game_id":"g1","action_index":3,"action_type":"submit_score","timestamp":1003,"action_payload":{"status":"finished"}}`)
	svc.handlePayload(ctx, `{"game_id":"g1","action_index":2,"action_type":"submit_score","timestamp":1002,"action_payload":{"status":"finalRound"}}`)

	svc.now = func() time.Time { return start.Add(2 * time.Minute) }
	svc.SweepInactive(ctx)
	assert.Empty(t, sink.abandoned)
	assert.Zero(t, svc.tracked(), "idle finished games are forgotten")
}

func TestIdleUnfinishedGameIsAbandoned(t *testing.T) {
	_, sink, svc := setup(t, Options{Inactivity: time.Minute})
	ctx := context.Background()

	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }
	svc.handlePayload(ctx, `{"game_id":"g1","action_index":1,"action_type":"start_game","timestamp":1000,"action_payload":{"status":"active"}}`)
	svc.handlePayload(ctx, `{"game_id":"g1","action_index":2,"action_type":"submit_score","timestamp":1001,"action_payload":{"status":"active"}}`)

	svc.now = func() time.Time { return start.Add(2 * time.Minute) }
	svc.SweepInactive(ctx)
	assert.Equal(t, []string{"g1"}, sink.abandoned)
	assert.Zero(t, svc.tracked())
}
