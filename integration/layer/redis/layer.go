package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/channeled/core/channel"
)

// sendScript atomically checks channel depth, stores the message under its
// own TTL key, and pushes the key reference onto the channel list. Returns 0
// when the channel is at capacity.
var sendScript = redis.NewScript(`
if redis.call('llen', KEYS[1]) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('set', KEYS[2], ARGV[1], 'EX', ARGV[3])
redis.call('rpush', KEYS[1], KEYS[2])
redis.call('expire', KEYS[1], ARGV[3])
return 1
`)

// blockPollInterval bounds how long a blocking receive waits inside Redis
// before rechecking its context.
const blockPollInterval = time.Second

// Layer is a Redis-backed channel layer. It implements channel.Layer and is
// safe for concurrent use from multiple goroutines and processes.
type Layer struct {
	client *redis.Client
	prefix string

	capacity      int
	expiry        time.Duration
	groupExpiry   time.Duration
	maxBodySize   int
	scanBatchSize int
	logger        *slog.Logger
}

// LayerOption configures a Layer.
type LayerOption func(*Layer)

// WithKeyPrefix namespaces every key the layer writes.
func WithKeyPrefix(prefix string) LayerOption {
	return func(l *Layer) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithScanBatchSize sets the SCAN page size used by Flush.
func WithScanBatchSize(n int) LayerOption {
	return func(l *Layer) {
		if n > 0 {
			l.scanBatchSize = n
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

// NewLayer creates a Redis-backed channel layer on an established client.
// Tuning (capacity, expiry, group expiry, body size) comes from the shared
// channel configuration.
func NewLayer(client *redis.Client, cfg channel.Config, opts ...LayerOption) *Layer {
	l := &Layer{
		client:        client,
		prefix:        "channeled:",
		capacity:      cfg.Capacity,
		expiry:        cfg.Expiry,
		groupExpiry:   cfg.GroupExpiry,
		maxBodySize:   cfg.MaxBodySize,
		scanBatchSize: 1000,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Layer) channelKey(name string) string { return l.prefix + "channel:" + name }
func (l *Layer) groupKey(name string) string   { return l.prefix + "group:" + name }
func (l *Layer) messageKey(id string) string   { return l.prefix + "msg:" + id }

// expirySeconds converts the message expiry to whole seconds for Redis TTLs,
// never below one second.
func (l *Layer) expirySeconds() int {
	return max(int(l.expiry/time.Second), 1)
}

// Send appends a message to the named channel.
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

	ok, err := sendScript.Run(ctx, l.client,
		[]string{l.channelKey(name), l.messageKey(msg.ID)},
		data, l.capacity, l.expirySeconds()).Int()
	if err != nil {
		return fmt.Errorf("redis send: %w", err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: %q", channel.ErrChannelFull, name)
	}

	return nil
}

// Receive returns the next pending message from any of the named channels.
func (l *Layer) Receive(ctx context.Context, channels []string, block bool) (string, channel.Message, error) {
	if len(channels) == 0 {
		return "", channel.Message{}, errors.New("no channels to receive from")
	}
	keys := make([]string, len(channels))
	for i, name := range channels {
		if !channel.ValidChannelName(name) {
			return "", channel.Message{}, fmt.Errorf("%w: %q", channel.ErrInvalidChannelName, name)
		}
		keys[i] = l.channelKey(name)
	}

	for {
		name, msg, ok, err := l.popOnce(ctx, channels, keys, block)
		if err != nil || ok {
			return name, msg, err
		}
		if !block {
			return "", channel.Message{}, nil
		}
		select {
		case <-ctx.Done():
			return "", channel.Message{}, ctx.Err()
		default:
		}
	}
}

// popOnce attempts one pop across the channel set. The third return value
// reports whether a live message was found; an expired reference counts as
// not found so callers retry.
func (l *Layer) popOnce(ctx context.Context, channels, keys []string, block bool) (string, channel.Message, bool, error) {
	var listKey, msgKey string

	if block {
		res, err := l.client.BLPop(ctx, blockPollInterval, keys...).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return "", channel.Message{}, false, nil
			}
			return "", channel.Message{}, false, fmt.Errorf("redis blpop: %w", err)
		}
		listKey, msgKey = res[0], res[1]
	} else {
		for i, key := range keys {
			val, err := l.client.LPop(ctx, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return "", channel.Message{}, false, fmt.Errorf("redis lpop: %w", err)
			}
			listKey, msgKey = keys[i], val
			break
		}
		if msgKey == "" {
			return "", channel.Message{}, false, nil
		}
	}

	data, err := l.client.GetDel(ctx, msgKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Reference outlived its message: the message expired. Retry.
			return "", channel.Message{}, false, nil
		}
		return "", channel.Message{}, false, fmt.Errorf("redis getdel: %w", err)
	}

	var msg channel.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", channel.Message{}, false, fmt.Errorf("decode message: %w", err)
	}

	name := channelNameFromKey(listKey, l.prefix)
	msg.Channel = name
	return name, msg, true, nil
}

func channelNameFromKey(key, prefix string) string {
	return key[len(prefix)+len("channel:"):]
}

// NewChannel mints a fresh single-reader or process-local channel name.
func (l *Layer) NewChannel(ctx context.Context, prefix string) (string, error) {
	if !channel.ValidNewChannelPrefix(prefix) {
		return "", fmt.Errorf("%w: %q", channel.ErrInvalidChannelPrefix, prefix)
	}

	for {
		name := channel.MintChannelName(prefix)
		exists, err := l.client.Exists(ctx, l.channelKey(name)).Result()
		if err != nil {
			return "", fmt.Errorf("redis exists: %w", err)
		}
		if exists == 0 {
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

	deadline := float64(time.Now().Add(l.groupExpiry).Unix())
	pipe := l.client.Pipeline()
	pipe.ZAdd(ctx, l.groupKey(group), redis.Z{Score: deadline, Member: name})
	// The set key itself lives one membership period past the newest member.
	pipe.Expire(ctx, l.groupKey(group), l.groupExpiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis group add: %w", err)
	}

	return nil
}

// GroupDiscard removes a channel from a group.
func (l *Layer) GroupDiscard(ctx context.Context, group, name string) error {
	if !channel.ValidGroupName(group) {
		return fmt.Errorf("%w: %q", channel.ErrInvalidGroupName, group)
	}

	if err := l.client.ZRem(ctx, l.groupKey(group), name).Err(); err != nil {
		return fmt.Errorf("redis group discard: %w", err)
	}
	return nil
}

// GroupChannels returns the unexpired member channels of a group, pruning
// expired memberships as a side effect.
func (l *Layer) GroupChannels(ctx context.Context, group string) ([]string, error) {
	if !channel.ValidGroupName(group) {
		return nil, fmt.Errorf("%w: %q", channel.ErrInvalidGroupName, group)
	}

	now := strconv.FormatInt(time.Now().Unix(), 10)
	key := l.groupKey(group)

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+now)
	members := pipe.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: now, Max: "+inf"})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis group channels: %w", err)
	}

	return members.Val(), nil
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

// Flush deletes every key the layer has written. Intended for tests and
// development tooling.
func (l *Layer) Flush(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := l.client.Scan(ctx, cursor, l.prefix+"*", int64(l.scanBatchSize)).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := l.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Healthcheck verifies Redis connectivity. Implements the same contract as
// the other layers.
func (l *Layer) Healthcheck(ctx context.Context) error {
	return Healthcheck(l.client)(ctx)
}
