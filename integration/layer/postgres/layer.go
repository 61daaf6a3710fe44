package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/channeled/core/channel"
)

// Layer is a Postgres-backed channel layer. It implements channel.Layer and
// is safe for concurrent use from multiple goroutines and processes; row
// locks (SKIP LOCKED) guarantee each message is delivered to one receiver.
type Layer struct {
	pool *pgxpool.Pool

	capacity        int
	expiry          time.Duration
	groupExpiry     time.Duration
	maxBodySize     int
	pollInterval    time.Duration
	cleanupInterval time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cleanedMessages    atomic.Int64
	cleanedMemberships atomic.Int64
}

// LayerOption configures a Layer.
type LayerOption func(*Layer)

// WithPollInterval sets how often a blocking Receive re-checks for new rows.
func WithPollInterval(d time.Duration) LayerOption {
	return func(l *Layer) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// WithCleanupInterval sets how often the background sweep deletes expired rows.
func WithCleanupInterval(d time.Duration) LayerOption {
	return func(l *Layer) {
		if d > 0 {
			l.cleanupInterval = d
		}
	}
}

// WithLayerLogger sets the logger for internal operations.
func WithLayerLogger(logger *slog.Logger) LayerOption {
	return func(l *Layer) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLayer creates a Postgres-backed channel layer on an established pool.
// Tuning (capacity, expiry, group expiry, body size) comes from the shared
// channel configuration.
func NewLayer(pool *pgxpool.Pool, cfg channel.Config, opts ...LayerOption) *Layer {
	l := &Layer{
		pool:            pool,
		capacity:        cfg.Capacity,
		expiry:          cfg.Expiry,
		groupExpiry:     cfg.GroupExpiry,
		maxBodySize:     cfg.MaxBodySize,
		pollInterval:    100 * time.Millisecond,
		cleanupInterval: time.Minute,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Send appends a message to the named channel. The depth check and insert
// run in a single statement; concurrent senders can overshoot capacity by
// the number of in-flight inserts, which is acceptable for backpressure.
func (l *Layer) Send(ctx context.Context, name string, msg channel.Message) error {
	if !channel.ValidChannelName(name) {
		return fmt.Errorf("%w: %q", channel.ErrInvalidChannelName, name)
	}
	if len(msg.Body) > l.maxBodySize {
		return fmt.Errorf("%w: %d bytes (max %d)", channel.ErrMessageTooLarge, len(msg.Body), l.maxBodySize)
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Channel = ""
	msg.Enqueued = time.Now()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	tag, err := l.pool.Exec(ctx, `
		INSERT INTO channeled_messages (channel, message, expires_at)
		SELECT $1, $2, $3
		WHERE (SELECT count(*) FROM channeled_messages WHERE channel = $1 AND expires_at > now()) < $4`,
		name, data, msg.Enqueued.Add(l.expiry), l.capacity)
	if err != nil {
		return fmt.Errorf("postgres send: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", channel.ErrChannelFull, name)
	}

	return nil
}

// Receive returns the next pending message from any of the named channels.
// Blocking mode polls at the configured interval until a row appears or the
// context is cancelled.
func (l *Layer) Receive(ctx context.Context, channels []string, block bool) (string, channel.Message, error) {
	if len(channels) == 0 {
		return "", channel.Message{}, errors.New("no channels to receive from")
	}
	for _, name := range channels {
		if !channel.ValidChannelName(name) {
			return "", channel.Message{}, fmt.Errorf("%w: %q", channel.ErrInvalidChannelName, name)
		}
	}

	for {
		name, msg, ok, err := l.popOnce(ctx, channels)
		if err != nil || ok {
			return name, msg, err
		}
		if !block {
			return "", channel.Message{}, nil
		}
		select {
		case <-ctx.Done():
			return "", channel.Message{}, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

// popOnce claims and deletes the oldest unexpired row across the channel
// set. SKIP LOCKED keeps concurrent receivers from contending on the same
// row.
func (l *Layer) popOnce(ctx context.Context, channels []string) (string, channel.Message, bool, error) {
	var (
		name string
		data []byte
	)
	err := l.pool.QueryRow(ctx, `
		DELETE FROM channeled_messages
		WHERE id = (
			SELECT id FROM channeled_messages
			WHERE channel = ANY($1) AND expires_at > now()
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING channel, message`,
		channels).Scan(&name, &data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", channel.Message{}, false, nil
		}
		return "", channel.Message{}, false, fmt.Errorf("postgres receive: %w", err)
	}

	var msg channel.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", channel.Message{}, false, fmt.Errorf("decode message: %w", err)
	}

	msg.Channel = name
	return name, msg, true, nil
}

// NewChannel mints a fresh single-reader or process-local channel name.
func (l *Layer) NewChannel(ctx context.Context, prefix string) (string, error) {
	if !channel.ValidNewChannelPrefix(prefix) {
		return "", fmt.Errorf("%w: %q", channel.ErrInvalidChannelPrefix, prefix)
	}

	for {
		name := channel.MintChannelName(prefix)
		var exists bool
		err := l.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM channeled_messages WHERE channel = $1)`,
			name).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("postgres new channel: %w", err)
		}
		if !exists {
			return name, nil
		}
	}
}

// GroupAdd registers a channel in a group, refreshing its membership expiry.
func (l *Layer) GroupAdd(ctx context.Context, group, name string) error {
	if !channel.ValidGroupName(group) {
		return fmt.Errorf("%w: %q", channel.ErrInvalidGroupName, group)
	}
	if !channel.ValidChannelName(name) {
		return fmt.Errorf("%w: %q", channel.ErrInvalidChannelName, name)
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO channeled_group_membership (group_name, channel, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_name, channel) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		group, name, time.Now().Add(l.groupExpiry))
	if err != nil {
		return fmt.Errorf("postgres group add: %w", err)
	}

	return nil
}

// GroupDiscard removes a channel from a group.
func (l *Layer) GroupDiscard(ctx context.Context, group, name string) error {
	if !channel.ValidGroupName(group) {
		return fmt.Errorf("%w: %q", channel.ErrInvalidGroupName, group)
	}

	_, err := l.pool.Exec(ctx,
		`DELETE FROM channeled_group_membership WHERE group_name = $1 AND channel = $2`,
		group, name)
	if err != nil {
		return fmt.Errorf("postgres group discard: %w", err)
	}
	return nil
}

// GroupChannels returns the unexpired member channels of a group. Expired
// rows are left for the background sweep.
func (l *Layer) GroupChannels(ctx context.Context, group string) ([]string, error) {
	if !channel.ValidGroupName(group) {
		return nil, fmt.Errorf("%w: %q", channel.ErrInvalidGroupName, group)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT channel FROM channeled_group_membership
		WHERE group_name = $1 AND expires_at > now()
		ORDER BY channel`,
		group)
	if err != nil {
		return nil, fmt.Errorf("postgres group channels: %w", err)
	}

	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres group channels: %w", err)
	}
	return members, nil
}

// SendGroup delivers a copy of the message to every unexpired member,
// best-effort. Full member channels are skipped so one slow consumer cannot
// block a broadcast.
func (l *Layer) SendGroup(ctx context.Context, group string, msg channel.Message) error {
	members, err := l.GroupChannels(ctx, group)
	if err != nil {
		return err
	}

	for _, name := range members {
		if err := l.Send(ctx, name, msg); err != nil {
			if errors.Is(err, channel.ErrChannelFull) || errors.Is(err, channel.ErrInvalidChannelName) {
				l.logger.DebugContext(ctx, "group fan-out skipped member",
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

// Flush truncates every table the layer owns. Intended for tests and
// development tooling.
func (l *Layer) Flush(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `TRUNCATE channeled_messages, channeled_group_membership`)
	if err != nil {
		return fmt.Errorf("postgres flush: %w", err)
	}
	return nil
}

// Start begins the background cleanup of expired rows. This is a blocking
// operation that runs until the context is cancelled. Use Run() for errgroup
// pattern or call this in a goroutine.
func (l *Layer) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return fmt.Errorf("postgres layer already started")
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.mu.Unlock()

	l.logger.InfoContext(l.ctx, "postgres layer cleanup started",
		slog.Duration("cleanup_interval", l.cleanupInterval),
		slog.Duration("message_expiry", l.expiry),
		slog.Duration("group_expiry", l.groupExpiry))

	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			l.logger.InfoContext(context.Background(), "postgres layer cleanup stopping")
			return l.ctx.Err()
		case <-ticker.C:
			l.sweepWithWait()
		}
	}
}

// Stop gracefully shuts down the cleanup with a timeout.
func (l *Layer) Stop() error {
	l.mu.Lock()
	if l.cancel == nil {
		l.mu.Unlock()
		return fmt.Errorf("postgres layer not started")
	}
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.InfoContext(context.Background(), "postgres layer stopped cleanly")
		return nil
	case <-ctx.Done():
		l.logger.WarnContext(context.Background(), "postgres layer shutdown timeout exceeded",
			slog.Duration("timeout", l.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", l.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
func (l *Layer) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- l.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = l.Stop()
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
func (l *Layer) sweepWithWait() {
	l.mu.Lock()
	if l.cancel == nil {
		l.mu.Unlock()
		return
	}
	l.wg.Add(1)
	l.mu.Unlock()

	defer l.wg.Done()
	l.sweep(l.ctx)
}

// sweep deletes expired messages and group memberships.
func (l *Layer) sweep(ctx context.Context) {
	tag, err := l.pool.Exec(ctx, `DELETE FROM channeled_messages WHERE expires_at <= now()`)
	if err != nil {
		l.logger.ErrorContext(ctx, "expired message cleanup failed", slog.Any("error", err))
	} else {
		l.cleanedMessages.Add(tag.RowsAffected())
	}

	tag, err = l.pool.Exec(ctx, `DELETE FROM channeled_group_membership WHERE expires_at <= now()`)
	if err != nil {
		l.logger.ErrorContext(ctx, "expired membership cleanup failed", slog.Any("error", err))
	} else {
		l.cleanedMemberships.Add(tag.RowsAffected())
	}
}

// LayerStats is a snapshot of the layer's cleanup counters.
type LayerStats struct {
	CleanedMessages    int64
	CleanedMemberships int64
	IsRunning          bool
}

// Stats returns current layer statistics for observability and monitoring.
func (l *Layer) Stats() LayerStats {
	l.mu.Lock()
	running := l.cancel != nil
	l.mu.Unlock()

	return LayerStats{
		CleanedMessages:    l.cleanedMessages.Load(),
		CleanedMemberships: l.cleanedMemberships.Load(),
		IsRunning:          running,
	}
}

// Healthcheck verifies database connectivity. Implements the same contract
// as the other layers.
func (l *Layer) Healthcheck(ctx context.Context) error {
	return Healthcheck(l.pool)(ctx)
}
