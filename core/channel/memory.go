package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MemoryLayerStats provides observability metrics for monitoring and debugging.
type MemoryLayerStats struct {
	Channels           int   // Channels with at least one pending message
	PendingMessages    int   // Total pending messages across all channels
	Groups             int   // Groups with at least one membership
	ExpiredMessages    int64 // Total messages dropped by expiry sweeps
	ExpiredMemberships int64 // Total group memberships dropped by expiry sweeps
	IsRunning          bool  // Whether the expiry manager is running
}

// MemoryLayer is an in-process channel layer for single-process deployments
// and tests. It implements Layer.
//
// Messages and group memberships expire lazily on access and eagerly via a
// background sweep started with Start().
type MemoryLayer struct {
	mu     sync.Mutex
	queues map[string][]Message
	groups map[string]map[string]time.Time // group -> channel -> membership deadline
	notify chan struct{}                   // closed and replaced on every send
	rr     int                             // receive scan offset, prevents starvation

	// Configuration
	capacity        int
	expiry          time.Duration
	groupExpiry     time.Duration
	maxBodySize     int
	cleanupInterval time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	// State management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Observability metrics
	expiredMessages    atomic.Int64
	expiredMemberships atomic.Int64
}

// NewMemoryLayer creates an in-memory channel layer with default tuning.
// Call Start() to begin the background expiry manager; the layer works
// without it, expiring lazily on access.
func NewMemoryLayer(opts ...MemoryLayerOption) *MemoryLayer {
	cfg := DefaultConfig()
	ml := &MemoryLayer{
		queues:          make(map[string][]Message),
		groups:          make(map[string]map[string]time.Time),
		notify:          make(chan struct{}),
		capacity:        cfg.Capacity,
		expiry:          cfg.Expiry,
		groupExpiry:     cfg.GroupExpiry,
		maxBodySize:     cfg.MaxBodySize,
		cleanupInterval: cfg.CleanupInterval,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(ml)
	}

	return ml
}

// NewMemoryLayerFromConfig creates a MemoryLayer from configuration.
// Additional options override config values.
func NewMemoryLayerFromConfig(cfg Config, opts ...MemoryLayerOption) *MemoryLayer {
	allOpts := append([]MemoryLayerOption{
		WithCapacity(cfg.Capacity),
		WithExpiry(cfg.Expiry),
		WithGroupExpiry(cfg.GroupExpiry),
		WithMaxBodySize(cfg.MaxBodySize),
		WithCleanupInterval(cfg.CleanupInterval),
		WithMemoryLayerShutdownTimeout(cfg.ShutdownTimeout),
	}, opts...)

	return NewMemoryLayer(allOpts...)
}

// Send appends a message to the named channel.
func (ml *MemoryLayer) Send(ctx context.Context, name string, msg Message) error {
	if !ValidChannelName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidChannelName, name)
	}
	if len(msg.Body) > ml.maxBodySize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(msg.Body), ml.maxBodySize)
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()

	now := time.Now()
	ml.pruneQueueLocked(name, now)

	if len(ml.queues[name]) >= ml.capacity {
		return fmt.Errorf("%w: %q", ErrChannelFull, name)
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Channel = ""
	msg.Enqueued = now
	ml.queues[name] = append(ml.queues[name], msg)

	// Wake every blocked receiver; each rescans its own channel set.
	close(ml.notify)
	ml.notify = make(chan struct{})

	return nil
}

// Receive returns the next pending message from any of the named channels.
func (ml *MemoryLayer) Receive(ctx context.Context, channels []string, block bool) (string, Message, error) {
	if len(channels) == 0 {
		return "", Message{}, errors.New("no channels to receive from")
	}
	for _, name := range channels {
		if !ValidChannelName(name) {
			return "", Message{}, fmt.Errorf("%w: %q", ErrInvalidChannelName, name)
		}
	}

	for {
		ml.mu.Lock()
		name, msg, ok := ml.popLocked(channels)
		if ok {
			ml.mu.Unlock()
			return name, msg, nil
		}
		if !block {
			ml.mu.Unlock()
			return "", Message{}, nil
		}
		wait := ml.notify
		ml.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", Message{}, ctx.Err()
		case <-wait:
		}
	}
}

// popLocked scans the channel set starting at a rotating offset so a busy
// channel cannot starve the rest.
func (ml *MemoryLayer) popLocked(channels []string) (string, Message, bool) {
	now := time.Now()
	start := ml.rr % len(channels)
	ml.rr++

	for i := range channels {
		name := channels[(start+i)%len(channels)]
		ml.pruneQueueLocked(name, now)

		q := ml.queues[name]
		if len(q) == 0 {
			continue
		}

		msg := q[0]
		if len(q) == 1 {
			delete(ml.queues, name)
		} else {
			ml.queues[name] = q[1:]
		}

		msg.Channel = name
		return name, msg, true
	}

	return "", Message{}, false
}

// pruneQueueLocked drops expired messages from the head of a queue. Expiry
// is monotonic within a queue because Enqueued is stamped on send, so only
// the head needs checking.
func (ml *MemoryLayer) pruneQueueLocked(name string, now time.Time) {
	q := ml.queues[name]
	dropped := 0
	for len(q) > 0 && q[0].ExpiredAt(now, ml.expiry) {
		q = q[1:]
		dropped++
	}
	if dropped > 0 {
		ml.expiredMessages.Add(int64(dropped))
		if len(q) == 0 {
			delete(ml.queues, name)
		} else {
			ml.queues[name] = q
		}
	}
}

// NewChannel mints a fresh single-reader or process-local channel name.
func (ml *MemoryLayer) NewChannel(ctx context.Context, prefix string) (string, error) {
	if !ValidNewChannelPrefix(prefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidChannelPrefix, prefix)
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()

	for {
		name := MintChannelName(prefix)
		if _, exists := ml.queues[name]; !exists {
			return name, nil
		}
	}
}

// GroupAdd registers a channel in a group, refreshing its membership expiry.
func (ml *MemoryLayer) GroupAdd(ctx context.Context, group, name string) error {
	if !ValidGroupName(group) {
		return fmt.Errorf("%w: %q", ErrInvalidGroupName, group)
	}
	if !ValidChannelName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidChannelName, name)
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()

	members, ok := ml.groups[group]
	if !ok {
		members = make(map[string]time.Time)
		ml.groups[group] = members
	}
	members[name] = time.Now().Add(ml.groupExpiry)

	return nil
}

// GroupDiscard removes a channel from a group.
func (ml *MemoryLayer) GroupDiscard(ctx context.Context, group, name string) error {
	if !ValidGroupName(group) {
		return fmt.Errorf("%w: %q", ErrInvalidGroupName, group)
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()

	if members, ok := ml.groups[group]; ok {
		delete(members, name)
		if len(members) == 0 {
			delete(ml.groups, group)
		}
	}

	return nil
}

// GroupChannels returns the unexpired member channels of a group.
func (ml *MemoryLayer) GroupChannels(ctx context.Context, group string) ([]string, error) {
	if !ValidGroupName(group) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGroupName, group)
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()

	return ml.groupMembersLocked(group, time.Now()), nil
}

// SendGroup delivers a copy of the message to every unexpired member,
// best-effort. Full member channels are skipped so one slow consumer cannot
// block a broadcast.
func (ml *MemoryLayer) SendGroup(ctx context.Context, group string, msg Message) error {
	if !ValidGroupName(group) {
		return fmt.Errorf("%w: %q", ErrInvalidGroupName, group)
	}

	ml.mu.Lock()
	members := ml.groupMembersLocked(group, time.Now())
	ml.mu.Unlock()

	for _, name := range members {
		if err := ml.Send(ctx, name, msg); err != nil {
			if errors.Is(err, ErrChannelFull) || errors.Is(err, ErrInvalidChannelName) {
				ml.logger.DebugContext(ctx, "group fan-out skipped member",
					slog.String("group", group),
					slog.String("channel", name),
					slog.String("reason", err.Error()))
				continue
			}
			return err
		}
	}

	return nil
}

func (ml *MemoryLayer) groupMembersLocked(group string, now time.Time) []string {
	members, ok := ml.groups[group]
	if !ok {
		return nil
	}

	names := make([]string, 0, len(members))
	expired := 0
	for name, deadline := range members {
		if deadline.Before(now) {
			delete(members, name)
			expired++
			continue
		}
		names = append(names, name)
	}
	if expired > 0 {
		ml.expiredMemberships.Add(int64(expired))
	}
	if len(members) == 0 {
		delete(ml.groups, group)
	}

	return names
}

// Flush drops all pending messages and group memberships.
func (ml *MemoryLayer) Flush(ctx context.Context) error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.queues = make(map[string][]Message)
	ml.groups = make(map[string]map[string]time.Time)

	return nil
}

// Start begins the background expiry manager. This is a blocking operation
// that runs until the context is cancelled. Use Run() for errgroup pattern
// or call this in a goroutine.
func (ml *MemoryLayer) Start(ctx context.Context) error {
	ml.mu.Lock()
	if ml.cancel != nil {
		ml.mu.Unlock()
		return fmt.Errorf("memory layer already started")
	}
	ml.ctx, ml.cancel = context.WithCancel(ctx)
	ml.mu.Unlock()

	ml.logger.InfoContext(ml.ctx, "memory layer expiry manager started",
		slog.Duration("cleanup_interval", ml.cleanupInterval),
		slog.Duration("message_expiry", ml.expiry),
		slog.Duration("group_expiry", ml.groupExpiry))

	ticker := time.NewTicker(ml.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ml.ctx.Done():
			ml.logger.InfoContext(context.Background(), "memory layer stopping")
			return ml.ctx.Err()
		case <-ticker.C:
			ml.sweepWithWait()
		}
	}
}

// Stop gracefully shuts down the expiry manager with a timeout.
func (ml *MemoryLayer) Stop() error {
	ml.mu.Lock()
	if ml.cancel == nil {
		ml.mu.Unlock()
		return fmt.Errorf("memory layer not started")
	}
	cancel := ml.cancel
	ml.cancel = nil
	ml.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), ml.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		ml.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		ml.logger.InfoContext(context.Background(), "memory layer stopped cleanly")
		return nil
	case <-ctx.Done():
		ml.logger.WarnContext(context.Background(), "memory layer shutdown timeout exceeded",
			slog.Duration("timeout", ml.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", ml.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (ml *MemoryLayer) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- ml.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = ml.Stop()
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

// sweepWithWait wraps sweep with WaitGroup tracking for graceful shutdown.
func (ml *MemoryLayer) sweepWithWait() {
	ml.mu.Lock()
	if ml.cancel == nil {
		ml.mu.Unlock()
		return
	}
	ml.wg.Add(1)
	ml.mu.Unlock()

	defer ml.wg.Done()
	ml.sweep()
}

// sweep drops expired messages and group memberships across the whole layer.
func (ml *MemoryLayer) sweep() {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	now := time.Now()
	for name := range ml.queues {
		ml.pruneQueueLocked(name, now)
	}
	for group := range ml.groups {
		ml.groupMembersLocked(group, now)
	}
}

// Stats returns current layer statistics for observability and monitoring.
// This method is thread-safe and can be called at any time.
func (ml *MemoryLayer) Stats() MemoryLayerStats {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	pending := 0
	for _, q := range ml.queues {
		pending += len(q)
	}

	return MemoryLayerStats{
		Channels:           len(ml.queues),
		PendingMessages:    pending,
		Groups:             len(ml.groups),
		ExpiredMessages:    ml.expiredMessages.Load(),
		ExpiredMemberships: ml.expiredMemberships.Load(),
		IsRunning:          ml.cancel != nil,
	}
}

// Healthcheck validates that the layer is operational. Returns nil when
// healthy. Suitable for use in health check endpoints.
func (ml *MemoryLayer) Healthcheck(ctx context.Context) error {
	ml.mu.Lock()
	running := ml.cancel != nil
	ml.mu.Unlock()

	if !running {
		return errors.Join(ErrHealthcheckFailed, errors.New("expiry manager is not running"))
	}

	return nil
}
