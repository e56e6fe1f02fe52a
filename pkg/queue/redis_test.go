package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type retrainPayload struct {
	Coin string `json:"coin"`
}

type recordingJob struct {
	mu    sync.Mutex
	seen  []string
	fails int
	done  chan struct{}
}

func (j *recordingJob) Name() string { return "retrain" }
func (j *recordingJob) Type() string { return "retrain" }

func (j *recordingJob) Handle(_ context.Context, payload json.RawMessage) error {
	p, err := ParsePayload[retrainPayload](payload)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fails > 0 {
		j.fails--
		return errors.New("not yet")
	}
	j.seen = append(j.seen, p.Coin)
	if j.done != nil {
		close(j.done)
		j.done = nil
	}
	return nil
}

func newQueue(t *testing.T, cfg QueueConfig) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueue(nil, cfg, client, WithKeyPrefix("test:queue")), mr
}

func TestEnqueueAndHandle(t *testing.T) {
	q, _ := newQueue(t, QueueConfig{Workers: 1})
	done := make(chan struct{})
	job := &recordingJob{done: done}
	q.RegisterJob(job)
	require.NoError(t, q.Start())
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	id, err := q.Enqueue(context.Background(), "retrain", retrainPayload{Coin: "BTCUSDT"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job not handled")
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	assert.Equal(t, []string{"BTCUSDT"}, job.seen)
}

func TestEnqueueRejectsUnknownType(t *testing.T) {
	q, _ := newQueue(t, QueueConfig{Workers: 1})
	require.NoError(t, q.Start())
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	_, err := q.Enqueue(context.Background(), "nope", nil)
	assert.Error(t, err)
}

func TestEnqueueBeforeStart(t *testing.T) {
	q, _ := newQueue(t, QueueConfig{})
	_, err := q.Enqueue(context.Background(), "retrain", nil)
	assert.Error(t, err)
}

func TestFailedJobIsRetriedThenDeadLettered(t *testing.T) {
	q, _ := newQueue(t, QueueConfig{RetryLimit: 1, RetryDelay: time.Second})
	job := &recordingJob{fails: 5}
	q.RegisterJob(job)
	// no workers: drive processing by hand
	require.NoError(t, q.Start())
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	_, err := q.Enqueue(context.Background(), "retrain", retrainPayload{Coin: "ETHUSDT"})
	require.NoError(t, err)

	ctx := context.Background()
	clock := time.Now()
	q.now = func() time.Time { return clock }

	q.processNextMessage()
	pending, _ := q.Pending(ctx)
	assert.Zero(t, pending)

	// not due yet
	q.processRetryMessages(ctx)
	pending, _ = q.Pending(ctx)
	assert.Zero(t, pending)

	clock = clock.Add(2 * time.Second)
	q.processRetryMessages(ctx)
	pending, _ = q.Pending(ctx)
	assert.Equal(t, int64(1), pending)

	q.processNextMessage()
	dead, err := q.client.LLen(ctx, q.deadLetterKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)
}

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload[retrainPayload](json.RawMessage(`{"coin":"SOLUSDT"}`))
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDT", p.Coin)

	_, err = ParsePayload[retrainPayload](nil)
	assert.Error(t, err)
}
