package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/jonwraymond/feedbackops/cache"
	"github.com/jonwraymond/feedbackops/observe"
	"github.com/jonwraymond/feedbackops/resilience"
)

// Requester serves feedback requests. *feedback.Coordinator implements it.
type Requester interface {
	Request(ctx context.Context, tag string, content []byte) ([]byte, error)
}

// Handler processes warm tasks.
type Handler struct {
	requester Requester
	logger    observe.Logger
}

// NewHandler creates a Handler. A nil logger discards output.
func NewHandler(r Requester, logger observe.Logger) *Handler {
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &Handler{requester: r, logger: logger}
}

// ProcessTask implements asynq.Handler. Failures that cannot succeed on a
// later run skip asynq's retry queue.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	p, err := DecodeWarm(t)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	taskID, _ := asynq.GetTaskID(ctx)
	start := time.Now()
	_, err = h.requester.Request(ctx, p.Tag, []byte(p.Content))
	fields := []observe.Field{
		observe.F("task_id", taskID),
		observe.F("tag", p.Tag),
		observe.F("duration", time.Since(start)),
	}
	if err == nil {
		h.logger.Info(ctx, "cache warmed", fields...)
		return nil
	}

	fields = append(fields, observe.F("error", err))
	if resilience.IsPermanent(err) || errors.Is(err, cache.ErrInvalidTag) {
		h.logger.Warn(ctx, "warm task dropped", fields...)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	h.logger.Warn(ctx, "warm task failed, will retry", fields...)
	return err
}

// NewServeMux routes warm tasks to h.
func NewServeMux(h *Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeWarm, h)
	return mux
}

// ServerConfig builds the asynq server configuration for the warm worker.
func ServerConfig(concurrency int, queue string, logger observe.Logger) asynq.Config {
	if logger == nil {
		logger = observe.NopLogger()
	}
	if queue == "" {
		queue = "default"
	}
	return asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      &asynqLogger{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error(ctx, "warm task error",
				observe.F("type", t.Type()),
				observe.F("retried", retried),
				observe.F("max_retry", maxRetry),
				observe.F("error", err),
			)
		}),
	}
}

// asynqLogger routes asynq's logs through observe.Logger.
type asynqLogger struct {
	logger observe.Logger
}

func (l *asynqLogger) Debug(args ...any) {
	l.logger.Debug(context.Background(), fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...any) {
	l.logger.Info(context.Background(), fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...any) {
	l.logger.Warn(context.Background(), fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...any) {
	l.logger.Error(context.Background(), fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...any) {
	l.logger.Error(context.Background(), fmt.Sprint(args...))
	os.Exit(1)
}
