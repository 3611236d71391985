package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/dialoguecast/internal/config"
)

// RenderTimeout bounds one episode render inside the worker.
const RenderTimeout = time.Hour

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}
}

// RedisOpt converts the Redis configuration for asynq clients and servers.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueEpisodeRender schedules a render and returns its task id. A payload
// without a task id gets a fresh one.
func (c *Client) EnqueueEpisodeRender(ctx context.Context, payload EpisodeRenderPayload) (string, error) {
	if payload.TaskID == "" {
		payload.TaskID = uuid.NewString()
	}
	task, err := NewEpisodeRenderTask(payload)
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.TaskID(payload.TaskID),
		asynq.MaxRetry(2),
		asynq.Timeout(RenderTimeout),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", TypeEpisodeRender, err)
	}
	return info.ID, nil
}
