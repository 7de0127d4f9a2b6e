package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureHandler struct {
	stream string
	data   []byte
	err    error
}

func (h *captureHandler) Handle(_ context.Context, stream string, data []byte) error {
	h.stream = stream
	h.data = data
	return h.err
}

func TestNewConsumer_Defaults(t *testing.T) {
	c := NewConsumer(nil, &ConsumerConfig{Group: "g", Consumer: "c1", Logger: zerolog.Nop()})

	assert.Equal(t, 30*time.Second, c.pendingCheckInterval)
	assert.Equal(t, 2*time.Minute, c.pendingIdleTime)
	assert.Equal(t, 3, c.maxRetries)
	assert.Equal(t, int64(10), c.batchSize)
	assert.Equal(t, 5*time.Second, c.block)

	c = NewConsumer(nil, &ConsumerConfig{MaxRetries: 5, BatchSize: 50})
	assert.Equal(t, 5, c.maxRetries)
	assert.Equal(t, int64(50), c.batchSize)
}

func TestConsumer_ProcessMessage(t *testing.T) {
	h := &captureHandler{}
	c := NewConsumer(nil, &ConsumerConfig{Handler: h, Logger: zerolog.Nop()})
	ctx := context.Background()

	err := c.processMessage(ctx, StreamClassify, redis.XMessage{
		ID:     "1-0",
		Values: map[string]any{"data": `{"app_name":"Slack"}`},
	})
	require.NoError(t, err)
	assert.Equal(t, StreamClassify, h.stream)
	assert.JSONEq(t, `{"app_name":"Slack"}`, string(h.data))

	err = c.processMessage(ctx, StreamClassify, redis.XMessage{ID: "2-0", Values: map[string]any{"payload": "x"}})
	assert.ErrorContains(t, err, "missing data field")

	err = c.processMessage(ctx, StreamClassify, redis.XMessage{ID: "3-0", Values: map[string]any{"data": 42}})
	assert.ErrorContains(t, err, "not a string")

	h.err = errors.New("boom")
	err = c.processMessage(ctx, StreamFeedback, redis.XMessage{ID: "4-0", Values: map[string]any{"data": "{}"}})
	assert.EqualError(t, err, "boom")
}

func TestConsumer_ReadMessagesWithoutStreams(t *testing.T) {
	c := NewConsumer(nil, &ConsumerConfig{Logger: zerolog.Nop()})

	_, err := c.readMessages(context.Background())
	assert.ErrorIs(t, err, redis.Nil)
}

func TestDeadLetterStream(t *testing.T) {
	assert.Equal(t, "dlq:classifier:classify", DeadLetterStream(StreamClassify))
	assert.Equal(t, "dlq:classifier:feedback", DeadLetterStream(StreamFeedback))
}

// scriptedHandler fails the first failures calls, then succeeds.
type scriptedHandler struct {
	mu       sync.Mutex
	failures int
	seen     []string
}

func (h *scriptedHandler) Handle(_ context.Context, _ string, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, string(data))
	if len(h.seen) <= h.failures {
		return errors.New("handler failed")
	}
	return nil
}

func (h *scriptedHandler) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func newStreamConsumer(t *testing.T, h JobHandler, maxRetries int) (*Consumer, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewConsumer(client, &ConsumerConfig{
		Group:                "classifier-workers",
		Consumer:             "worker-1",
		Streams:              []string{StreamClassify},
		Handler:              h,
		Logger:               zerolog.Nop(),
		PendingCheckInterval: time.Hour,
		PendingIdleTime:      5 * time.Millisecond,
		MaxRetries:           maxRetries,
		Block:                20 * time.Millisecond,
	}), client
}

func pendingCount(t *testing.T, client *redis.Client) int64 {
	t.Helper()
	p, err := client.XPending(context.Background(), StreamClassify, "classifier-workers").Result()
	require.NoError(t, err)
	return p.Count
}

func TestConsumer_RunProcessesAndAcks(t *testing.T) {
	h := &scriptedHandler{}
	c, client := newStreamConsumer(t, h, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return client.Exists(context.Background(), StreamClassify).Val() == 1
	}, time.Second, 5*time.Millisecond, "group and stream are created")

	require.NoError(t, client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: StreamClassify,
		Values: map[string]any{"data": `{"app_name":"Slack","title":"standup"}`},
	}).Err())

	require.Eventually(t, func() bool {
		return h.calls() == 1 && pendingCount(t, client) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.JSONEq(t, `{"app_name":"Slack","title":"standup"}`, h.seen[0])
}

// deliverOnce reads one message through the group and lets the handler fail it.
func deliverOnce(t *testing.T, c *Consumer, client *redis.Client) string {
	t.Helper()
	ctx := context.Background()

	c.createConsumerGroup(ctx, StreamClassify)
	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamClassify,
		Values: map[string]any{"data": `{"app_name":"Pager"}`},
	}).Result()
	require.NoError(t, err)

	result, err := c.readMessages(ctx)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Len(t, result[0].Messages, 1)
	c.handleAndAck(ctx, StreamClassify, result[0].Messages[0])
	require.Equal(t, int64(1), pendingCount(t, client), "failed message stays pending")

	time.Sleep(20 * time.Millisecond)
	return id
}

func TestConsumer_DeadLettersAfterMaxRetries(t *testing.T) {
	h := &scriptedHandler{failures: 100}
	c, client := newStreamConsumer(t, h, 1)
	id := deliverOnce(t, c, client)

	c.claimAndProcessPending(context.Background())

	assert.Equal(t, 1, h.calls(), "not retried past max retries")
	assert.Equal(t, int64(0), pendingCount(t, client))

	dlq, err := client.XRange(context.Background(), DeadLetterStream(StreamClassify), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, dlq, 1)
	assert.Equal(t, StreamClassify, dlq[0].Values["original_stream"])
	assert.Equal(t, id, dlq[0].Values["original_id"])
	assert.Equal(t, `{"app_name":"Pager"}`, dlq[0].Values["original_data"])
	assert.Equal(t, "worker-1", dlq[0].Values["consumer"])
}

func TestConsumer_RetriesPendingMessage(t *testing.T) {
	h := &scriptedHandler{failures: 1}
	c, client := newStreamConsumer(t, h, 3)
	deliverOnce(t, c, client)

	c.claimAndProcessPending(context.Background())

	assert.Equal(t, 2, h.calls())
	assert.Equal(t, int64(0), pendingCount(t, client))
	n, err := client.XLen(context.Background(), DeadLetterStream(StreamClassify)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}
