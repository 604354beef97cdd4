package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

const (
	defaultMaxRetry    = 5
	defaultTaskTimeout = 3 * time.Minute
)

type Client struct {
	client   *asynq.Client
	queue    string
	maxRetry int
	timeout  time.Duration
}

// NewClient enqueues onto queueName. Non-positive maxRetry or timeout fall
// back to 5 retries and three minutes.
func NewClient(redisOpt asynq.RedisClientOpt, queueName string, maxRetry int, timeout time.Duration) *Client {
	if maxRetry <= 0 {
		maxRetry = defaultMaxRetry
	}
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	return &Client{
		client:   asynq.NewClient(redisOpt),
		queue:    queueName,
		maxRetry: maxRetry,
		timeout:  timeout,
	}
}

func (c *Client) EnqueueProcessImage(ctx context.Context, payload ProcessImagePayload) (*asynq.TaskInfo, error) {
	task, err := NewProcessImageTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(c.timeout),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
