package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/channeled/core/channel"
)

func TestConnect_Validation(t *testing.T) {
	t.Parallel()

	t.Run("empty connection url", func(t *testing.T) {
		t.Parallel()

		_, err := Connect(context.Background(), Config{})
		assert.ErrorIs(t, err, ErrEmptyConnectionURL)
	})

	t.Run("malformed connection url", func(t *testing.T) {
		t.Parallel()

		_, err := Connect(context.Background(), Config{
			ConnectionURL:  "http://not-redis",
			ConnectTimeout: time.Second,
		})
		assert.ErrorIs(t, err, ErrFailedToParseRedisConnString)
	})
}

func TestLayer_Keys(t *testing.T) {
	t.Parallel()

	l := NewLayer(nil, channel.DefaultConfig(), WithKeyPrefix("test:"))

	assert.Equal(t, "test:channel:chat.receive", l.channelKey("chat.receive"))
	assert.Equal(t, "test:group:room", l.groupKey("room"))
	assert.Equal(t, "test:msg:abc", l.messageKey("abc"))
	assert.Equal(t, "chat.receive", channelNameFromKey(l.channelKey("chat.receive"), "test:"))
}

func TestLayer_ExpirySeconds(t *testing.T) {
	t.Parallel()

	cfg := channel.DefaultConfig()
	cfg.Expiry = 90 * time.Second
	assert.Equal(t, 90, NewLayer(nil, cfg).expirySeconds())

	// Sub-second expiry still produces a usable TTL.
	cfg.Expiry = 100 * time.Millisecond
	assert.Equal(t, 1, NewLayer(nil, cfg).expirySeconds())
}

func TestLayer_InputValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewLayer(nil, channel.DefaultConfig())

	assert.ErrorIs(t, l.Send(ctx, "bad name", channel.Message{}), channel.ErrInvalidChannelName)

	cfg := channel.DefaultConfig()
	cfg.MaxBodySize = 4
	small := NewLayer(nil, cfg)
	assert.ErrorIs(t, small.Send(ctx, "ok.channel", channel.NewMessage([]byte("12345"), nil)), channel.ErrMessageTooLarge)

	_, _, err := l.Receive(ctx, []string{"bad name"}, false)
	assert.ErrorIs(t, err, channel.ErrInvalidChannelName)

	_, err = l.NewChannel(ctx, "no.separator")
	assert.ErrorIs(t, err, channel.ErrInvalidChannelPrefix)

	assert.ErrorIs(t, l.GroupAdd(ctx, "bad!group", "ok.channel"), channel.ErrInvalidGroupName)
	assert.ErrorIs(t, l.GroupAdd(ctx, "group", "bad name"), channel.ErrInvalidChannelName)
}
