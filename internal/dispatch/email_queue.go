package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/minjcho/noteum-account/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// OtpMessage is the job handed to the external delivery worker. The worker
// owns transport, templates and its own retry policy; duplicate deliveries
// are harmless because the recovery record is the source of truth.
type OtpMessage struct {
	Email      string    `json:"email"`
	Otp        string    `json:"otp"`
	ExpiresAt  time.Time `json:"expires_at"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// EmailDispatcher hands an OTP off for asynchronous, at-least-once delivery
type EmailDispatcher interface {
	Enqueue(ctx context.Context, msg OtpMessage) error
}

// RedisQueue pushes OTP jobs onto a Redis list consumed by the mail worker
type RedisQueue struct {
	client   *redis.Client
	queueKey string
}

func NewRedisQueue(client *redis.Client, queueKey string) *RedisQueue {
	return &RedisQueue{
		client:   client,
		queueKey: queueKey,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg OtpMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if err := q.client.LPush(ctx, q.queueKey, payload).Err(); err != nil {
		logger.Error("Failed to enqueue OTP mail job", err, map[string]interface{}{
			"email": msg.Email,
			"queue": q.queueKey,
		})
		return err
	}

	logger.Debug("OTP mail job enqueued", map[string]interface{}{
		"email": msg.Email,
		"queue": q.queueKey,
	})
	return nil
}

// LogDispatcher is the development fallback used when no Redis is configured.
// It logs the destination only; the code itself must never reach the logs.
type LogDispatcher struct{}

func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{}
}

func (d *LogDispatcher) Enqueue(_ context.Context, msg OtpMessage) error {
	logger.Info("OTP mail dispatch skipped (no queue configured)", map[string]interface{}{
		"email":      msg.Email,
		"expires_at": msg.ExpiresAt,
	})
	return nil
}
