package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupQueueTest(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
	})

	return NewRedisQueue(client, "test:mail:otp"), mr
}

func TestRedisQueue_Enqueue(t *testing.T) {
	queue, mr := setupQueueTest(t)

	now := time.Now().UTC().Truncate(time.Second)
	msg := OtpMessage{
		Email:      "test@example.com",
		Otp:        "123456",
		ExpiresAt:  now.Add(15 * time.Minute),
		EnqueuedAt: now,
	}

	require.NoError(t, queue.Enqueue(context.Background(), msg))

	raw, err := mr.Lpop("test:mail:otp")
	require.NoError(t, err)

	var decoded OtpMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, msg.Email, decoded.Email)
	assert.Equal(t, msg.Otp, decoded.Otp)
	assert.True(t, msg.ExpiresAt.Equal(decoded.ExpiresAt))
}

func TestRedisQueue_Enqueue_Ordering(t *testing.T) {
	queue, mr := setupQueueTest(t)
	ctx := context.Background()

	for _, otp := range []string{"111111", "222222", "333333"} {
		require.NoError(t, queue.Enqueue(ctx, OtpMessage{
			Email: "test@example.com",
			Otp:   otp,
		}))
	}

	// LPUSH + worker-side RPOP makes the list a FIFO queue
	raw, err := mr.RPop("test:mail:otp")
	require.NoError(t, err)

	var decoded OtpMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, "111111", decoded.Otp)
}

func TestRedisQueue_Enqueue_Unavailable(t *testing.T) {
	queue, mr := setupQueueTest(t)
	mr.Close()

	err := queue.Enqueue(context.Background(), OtpMessage{
		Email: "test@example.com",
		Otp:   "123456",
	})
	assert.Error(t, err)
}

func TestLogDispatcher_Enqueue(t *testing.T) {
	dispatcher := NewLogDispatcher()

	err := dispatcher.Enqueue(context.Background(), OtpMessage{
		Email: "test@example.com",
		Otp:   "123456",
	})
	assert.NoError(t, err)
}
