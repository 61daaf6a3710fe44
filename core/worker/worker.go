package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/channeled/core/channel"
	"github.com/dmitrymomot/channeled/core/consumer"
	"github.com/dmitrymomot/channeled/core/routing"
)

// Layer is the slice of a channel layer a worker needs: receiving routed
// messages and re-sending them on redelivery.
type Layer interface {
	channel.Receiver
	channel.Sender
}

// Worker pulls messages off a channel layer and dispatches them to the
// consumers resolved by its router.
type Worker struct {
	layer    Layer
	router   *routing.Router
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex

	// Configuration
	maxRetries      int
	consumeTimeout  time.Duration
	shutdownTimeout time.Duration
	onlyChannels    []string
	excludeChannels []string
	logger          *slog.Logger

	// State management
	ctx    context.Context
	cancel context.CancelFunc

	// Observability metrics
	messagesProcessed  atomic.Int64
	messagesFailed     atomic.Int64
	messagesRequeued   atomic.Int64
	messagesDropped    atomic.Int64
	messagesUnroutable atomic.Int64
	activeConsumers    atomic.Int32
}

// Stats provides observability metrics for monitoring and debugging.
type Stats struct {
	MessagesProcessed  int64 // Successfully consumed messages
	MessagesFailed     int64 // Consumer errors (including recovered panics)
	MessagesRequeued   int64 // Redeliveries triggered by ErrConsumeLater
	MessagesDropped    int64 // Messages dropped after exhausting redeliveries
	MessagesUnroutable int64 // Messages with no matching route
	ActiveConsumers    int32 // Consumers currently running
	IsRunning          bool  // Whether the worker loop is active
}

// New creates a worker reading from the given layer and dispatching through
// the given router.
func New(layer Layer, router *routing.Router, opts ...Option) (*Worker, error) {
	if layer == nil {
		return nil, ErrLayerNil
	}
	if router == nil {
		return nil, ErrRouterNil
	}

	cfg := DefaultConfig()
	o := &options{
		maxConcurrent:   cfg.MaxConcurrent,
		maxRetries:      cfg.MaxRetries,
		consumeTimeout:  cfg.ConsumeTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Worker{
		layer:           layer,
		router:          router,
		workerID:        uuid.New(),
		sem:             make(chan struct{}, o.maxConcurrent),
		maxRetries:      o.maxRetries,
		consumeTimeout:  o.consumeTimeout,
		shutdownTimeout: o.shutdownTimeout,
		onlyChannels:    o.onlyChannels,
		excludeChannels: o.excludeChannels,
		logger:          o.logger,
	}, nil
}

// NewFromConfig creates a Worker from configuration. Additional options
// override config values.
func NewFromConfig(cfg Config, layer Layer, router *routing.Router, opts ...Option) (*Worker, error) {
	allOpts := append([]Option{
		WithMaxConcurrent(cfg.MaxConcurrent),
		WithMaxRetries(cfg.MaxRetries),
		WithConsumeTimeout(cfg.ConsumeTimeout),
		WithShutdownTimeout(cfg.ShutdownTimeout),
		WithOnlyChannels(cfg.OnlyChannels...),
		WithExcludeChannels(cfg.ExcludeChannels...),
	}, opts...)

	return New(layer, router, allOpts...)
}

// Channels returns the receive set: the router's channels filtered by the
// only/exclude options, minus single-reader and process-local entries, which
// belong to the gateways that mint them.
func (w *Worker) Channels() []string {
	channels := w.router.Channels()

	filtered := channels[:0:0]
	for _, name := range channels {
		if channel.SingleReader(name) || channel.Local(name) {
			continue
		}
		if len(w.onlyChannels) > 0 && !slices.Contains(w.onlyChannels, name) {
			continue
		}
		if slices.Contains(w.excludeChannels, name) {
			continue
		}
		filtered = append(filtered, name)
	}

	return filtered
}

// Start begins the receive-and-dispatch loop. This is a blocking operation
// that runs until the context is cancelled. Use Run() for errgroup pattern
// or call this in a goroutine.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}

	channels := w.Channels()
	if len(channels) == 0 {
		w.mu.Unlock()
		return ErrNoChannels
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.logger.InfoContext(w.ctx, "worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Any("channels", channels),
		slog.Int("max_concurrent", cap(w.sem)))

	for {
		name, msg, err := w.layer.Receive(w.ctx, channels, true)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.logger.InfoContext(context.Background(), "worker stopping",
					slog.String("worker_id", w.workerID.String()))
				return w.ctx.Err()
			}
			w.logger.ErrorContext(w.ctx, "receive failed",
				slog.String("worker_id", w.workerID.String()),
				slog.String("error", err.Error()))
			// Pause before retrying so a broken backend does not spin the
			// loop at full speed.
			select {
			case <-w.ctx.Done():
				return w.ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if name == "" {
			continue
		}

		select {
		case w.sem <- struct{}{}:
		case <-w.ctx.Done():
			// Requeue so another worker can pick the message up.
			w.requeue(msg)
			return w.ctx.Err()
		}

		// Mutex protects against shutdown race: verify the worker is still
		// running AND add to the waitgroup atomically, otherwise Stop()
		// might wait on an incomplete count.
		w.mu.RLock()
		if w.cancel == nil {
			w.mu.RUnlock()
			<-w.sem
			w.requeue(msg)
			return nil
		}
		w.wg.Add(1)
		w.mu.RUnlock()

		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			w.dispatch(msg)
		}()
	}
}

// Stop gracefully shuts down the worker with a timeout. Returns an error if
// the shutdown timeout is exceeded.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.InfoContext(context.Background(), "worker stopping, waiting for active consumers",
		slog.String("worker_id", w.workerID.String()),
		slog.Duration("timeout", w.shutdownTimeout))

	ctx, ctxCancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.InfoContext(context.Background(), "worker stopped cleanly",
			slog.String("worker_id", w.workerID.String()))
		return nil
	case <-ctx.Done():
		w.logger.WarnContext(context.Background(), "worker shutdown timeout exceeded",
			slog.String("worker_id", w.workerID.String()),
			slog.Duration("timeout", w.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", w.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- w.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = w.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// dispatch resolves and runs the consumer for one message.
func (w *Worker) dispatch(msg channel.Message) {
	start := time.Now()

	w.activeConsumers.Add(1)
	defer w.activeConsumers.Add(-1)

	c, params, ok := w.router.Resolve(msg)
	if !ok {
		w.messagesUnroutable.Add(1)
		w.logger.WarnContext(w.ctx, "no route for message",
			slog.String("worker_id", w.workerID.String()),
			slog.String("channel", msg.Channel),
			slog.String("message_id", msg.ID))
		return
	}

	err := w.consume(c, msg, params)
	duration := time.Since(start)

	switch {
	case err == nil:
		w.messagesProcessed.Add(1)
		w.logger.DebugContext(w.ctx, "message consumed",
			slog.String("worker_id", w.workerID.String()),
			slog.String("channel", msg.Channel),
			slog.String("consumer", c.Name()),
			slog.Duration("duration", duration))

	case errors.Is(err, consumer.ErrConsumeLater):
		w.requeue(msg)

	default:
		w.messagesFailed.Add(1)
		w.logger.ErrorContext(w.ctx, "consumer failed",
			slog.String("worker_id", w.workerID.String()),
			slog.String("channel", msg.Channel),
			slog.String("consumer", c.Name()),
			slog.String("message_id", msg.ID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
	}
}

// consume invokes a consumer with panic recovery. Consumers run on a
// detached context so graceful worker shutdown does not interrupt them;
// they get the full consume timeout to finish.
func (w *Worker) consume(c consumer.Consumer, msg channel.Message, params consumer.Params) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in consumer: %v", r)
			w.logger.ErrorContext(w.ctx, "consumer panicked",
				slog.String("worker_id", w.workerID.String()),
				slog.String("channel", msg.Channel),
				slog.String("consumer", c.Name()),
				slog.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.consumeTimeout)
	defer cancel()

	return c.Consume(ctx, msg, params)
}

// requeue re-sends a message to its channel for another delivery attempt.
// Messages beyond the redelivery cap are dropped, as are requeues into a
// full channel: a worker must not die because a queue is momentarily full.
func (w *Worker) requeue(msg channel.Message) {
	if msg.Retries >= w.maxRetries {
		w.messagesDropped.Add(1)
		w.logger.WarnContext(context.Background(), "message dropped after max redeliveries",
			slog.String("worker_id", w.workerID.String()),
			slog.String("channel", msg.Channel),
			slog.String("message_id", msg.ID),
			slog.Int("retries", msg.Retries))
		return
	}

	name := msg.Channel
	msg.Retries++
	if err := w.layer.Send(context.Background(), name, msg); err != nil {
		w.messagesDropped.Add(1)
		w.logger.WarnContext(context.Background(), "requeue failed, message dropped",
			slog.String("worker_id", w.workerID.String()),
			slog.String("channel", name),
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()))
		return
	}

	w.messagesRequeued.Add(1)
}

// Stats returns current worker statistics for observability and monitoring.
// This method is thread-safe and can be called at any time.
func (w *Worker) Stats() Stats {
	w.mu.RLock()
	isRunning := w.cancel != nil
	w.mu.RUnlock()

	return Stats{
		MessagesProcessed:  w.messagesProcessed.Load(),
		MessagesFailed:     w.messagesFailed.Load(),
		MessagesRequeued:   w.messagesRequeued.Load(),
		MessagesDropped:    w.messagesDropped.Load(),
		MessagesUnroutable: w.messagesUnroutable.Load(),
		ActiveConsumers:    w.activeConsumers.Load(),
		IsRunning:          isRunning,
	}
}

// Healthcheck validates that the worker is operational and not overloaded.
// Returns nil if healthy. Suitable for use in health check endpoints.
func (w *Worker) Healthcheck(ctx context.Context) error {
	stats := w.Stats()

	if !stats.IsRunning {
		return errors.Join(ErrHealthcheckFailed, ErrWorkerNotRunning)
	}

	maxConcurrent := int32(cap(w.sem))
	if stats.ActiveConsumers >= maxConcurrent {
		return errors.Join(ErrHealthcheckFailed, ErrWorkerOverloaded,
			fmt.Errorf("%d/%d slots busy", stats.ActiveConsumers, maxConcurrent))
	}

	return nil
}
