package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/jonwraymond/feedbackops/cache"
	"github.com/jonwraymond/feedbackops/observe"
)

// TypeWarm is the task type for cache warming.
const TypeWarm = "feedback:warm"

// ErrInvalidPayload is returned for a task whose payload cannot be decoded.
var ErrInvalidPayload = errors.New("jobs: invalid warm payload")

// WarmPayload is the body of a warm task.
type WarmPayload struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

// Keyer derives cache keys.
type Keyer interface {
	Key(tag string, content []byte) (cache.Key, error)
}

// NewWarmTask builds a warm task whose ID is the request's cache key.
func NewWarmTask(keys Keyer, tag string, content []byte, opts ...asynq.Option) (*asynq.Task, error) {
	key, err := keys.Key(tag, content)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(WarmPayload{Tag: tag, Content: string(content)})
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal payload: %w", err)
	}
	opts = append([]asynq.Option{asynq.TaskID(key.String())}, opts...)
	return asynq.NewTask(TypeWarm, payload, opts...), nil
}

// DecodeWarm decodes a warm task's payload.
func DecodeWarm(t *asynq.Task) (WarmPayload, error) {
	var p WarmPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return WarmPayload{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return p, nil
}

// Client is the subset of *asynq.Client used by Enqueuer.
type Client interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// EnqueueOptions controls how warm tasks are queued.
type EnqueueOptions struct {
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

// Enqueuer schedules warm tasks.
type Enqueuer struct {
	client Client
	keys   Keyer
	opts   EnqueueOptions
	logger observe.Logger
}

// NewEnqueuer creates an Enqueuer. A nil logger discards output.
func NewEnqueuer(client Client, keys Keyer, opts EnqueueOptions, logger observe.Logger) *Enqueuer {
	if logger == nil {
		logger = observe.NopLogger()
	}
	if opts.Queue == "" {
		opts.Queue = "default"
	}
	return &Enqueuer{client: client, keys: keys, opts: opts, logger: logger}
}

// Warm queues a warm task. It reports false, with no error, when a task for
// the same key is already pending.
func (e *Enqueuer) Warm(ctx context.Context, tag string, content []byte) (bool, error) {
	opts := []asynq.Option{asynq.Queue(e.opts.Queue)}
	if e.opts.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.opts.MaxRetry))
	}
	if e.opts.Timeout > 0 {
		opts = append(opts, asynq.Timeout(e.opts.Timeout))
	}

	task, err := NewWarmTask(e.keys, tag, content, opts...)
	if err != nil {
		return false, err
	}

	info, err := e.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		e.logger.Debug(ctx, "warm task already pending", observe.F("tag", tag))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("jobs: enqueue: %w", err)
	}

	e.logger.Info(ctx, "warm task enqueued",
		observe.F("task_id", info.ID),
		observe.F("queue", info.Queue),
		observe.F("tag", tag),
	)
	return true, nil
}

// Close closes the underlying client.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
