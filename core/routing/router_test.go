package routing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/channeled/core/channel"
	"github.com/dmitrymomot/channeled/core/consumer"
	"github.com/dmitrymomot/channeled/core/routing"
)

func noop(name string) consumer.Consumer {
	return consumer.Func(name, func(context.Context, channel.Message, consumer.Params) error {
		return nil
	})
}

func msgOn(ch, path string) channel.Message {
	msg := channel.NewMessage(nil, map[string]string{channel.FieldPath: path})
	msg.Channel = ch
	return msg
}

func TestRouter_Resolve(t *testing.T) {
	t.Parallel()

	t.Run("channel only", func(t *testing.T) {
		t.Parallel()

		r := routing.New().Route("websocket.disconnect", noop("bye"))

		msg := channel.Message{Channel: "websocket.disconnect"}
		c, params, ok := r.Resolve(msg)
		require.True(t, ok)
		assert.Equal(t, "bye", c.Name())
		assert.Empty(t, params)
	})

	t.Run("path filter extracts params", func(t *testing.T) {
		t.Parallel()

		r := routing.New().
			Route("websocket.receive", noop("chat"), routing.Path(`^/chat/(?P<room>[^/]+)/$`))

		c, params, ok := r.Resolve(msgOn("websocket.receive", "/chat/lobby/"))
		require.True(t, ok)
		assert.Equal(t, "chat", c.Name())
		assert.Equal(t, "lobby", params.Get("room"))

		_, _, ok = r.Resolve(msgOn("websocket.receive", "/other/"))
		assert.False(t, ok)
	})

	t.Run("first matching route wins", func(t *testing.T) {
		t.Parallel()

		r := routing.New().
			Route("websocket.receive", noop("specific"), routing.Path(`^/chat/admin/$`)).
			Route("websocket.receive", noop("general"), routing.Path(`^/chat/`))

		c, _, ok := r.Resolve(msgOn("websocket.receive", "/chat/admin/"))
		require.True(t, ok)
		assert.Equal(t, "specific", c.Name())

		c, _, ok = r.Resolve(msgOn("websocket.receive", "/chat/lobby/"))
		require.True(t, ok)
		assert.Equal(t, "general", c.Name())
	})

	t.Run("filter on missing field does not match", func(t *testing.T) {
		t.Parallel()

		r := routing.New().
			Route("websocket.receive", noop("chat"), routing.Path(`^/`))

		msg := channel.Message{Channel: "websocket.receive"}
		_, _, ok := r.Resolve(msg)
		assert.False(t, ok)
	})

	t.Run("multiple filters must all match", func(t *testing.T) {
		t.Parallel()

		r := routing.New().
			Route("webhook.event", noop("hook"),
				routing.Path(`^/hooks/(?P<id>\d+)$`),
				routing.Filter("kind", `^(?P<kind>push|tag)$`))

		msg := channel.NewMessage(nil, map[string]string{
			channel.FieldPath: "/hooks/42",
			"kind":            "push",
		})
		msg.Channel = "webhook.event"

		_, params, ok := r.Resolve(msg)
		require.True(t, ok)
		assert.Equal(t, "42", params.Get("id"))
		assert.Equal(t, "push", params.Get("kind"))

		msg.Fields["kind"] = "comment"
		_, _, ok = r.Resolve(msg)
		assert.False(t, ok)
	})

	t.Run("single-reader base form matches minted channels", func(t *testing.T) {
		t.Parallel()

		r := routing.New().Route("websocket.send!", noop("reply"))

		c, _, ok := r.Resolve(channel.Message{Channel: "websocket.send!f3a9c1"})
		require.True(t, ok)
		assert.Equal(t, "reply", c.Name())
	})

	t.Run("unrouted channel", func(t *testing.T) {
		t.Parallel()

		r := routing.New().Route("websocket.receive", noop("chat"))
		_, _, ok := r.Resolve(channel.Message{Channel: "http.request"})
		assert.False(t, ok)
	})
}

func TestRouter_Include(t *testing.T) {
	t.Parallel()

	t.Run("prefix fuses into nested path filters", func(t *testing.T) {
		t.Parallel()

		chat := routing.New().
			Route("websocket.receive", noop("room"), routing.Path(`^/(?P<room>[^/]+)/$`)).
			Route("websocket.disconnect", noop("bye"))

		root := routing.New().Include(chat, routing.Path(`^/chat`))

		c, params, ok := root.Resolve(msgOn("websocket.receive", "/chat/lobby/"))
		require.True(t, ok)
		assert.Equal(t, "room", c.Name())
		assert.Equal(t, "lobby", params.Get("room"))

		// Outside the prefix nothing matches.
		_, _, ok = root.Resolve(msgOn("websocket.receive", "/other/lobby/"))
		assert.False(t, ok)

		// Routes without a path filter inherit the bare prefix.
		_, _, ok = root.Resolve(msgOn("websocket.disconnect", "/chat/lobby/"))
		assert.True(t, ok)
		_, _, ok = root.Resolve(msgOn("websocket.disconnect", "/elsewhere/"))
		assert.False(t, ok)
	})

	t.Run("included router is copied", func(t *testing.T) {
		t.Parallel()

		sub := routing.New().Route("a.channel", noop("a"))
		root := routing.New().Include(sub)

		sub.Route("b.channel", noop("b"))

		assert.Equal(t, []string{"a.channel"}, root.Channels())
	})
}

func TestRouter_Channels(t *testing.T) {
	t.Parallel()

	r := routing.New().
		Route("websocket.receive", noop("one"), routing.Path(`^/a/`)).
		Route("websocket.receive", noop("two"), routing.Path(`^/b/`)).
		Route("websocket.connect", noop("three"))

	assert.Equal(t, []string{"websocket.connect", "websocket.receive"}, r.Channels())
}

func TestRouter_Panics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		routing.New().Route("bad channel name", noop("x"))
	})
	assert.Panics(t, func() {
		routing.New().Route("ok.channel", nil)
	})
	assert.Panics(t, func() {
		routing.Path(`^/broken[`)
	})
}

func TestRouter_Routes(t *testing.T) {
	t.Parallel()

	r := routing.New().
		Route("websocket.receive", noop("chat"), routing.Path(`^/chat/`))

	infos := r.Routes()
	require.Len(t, infos, 1)
	assert.Equal(t, "websocket.receive", infos[0].Channel)
	assert.Equal(t, "chat", infos[0].Consumer)
	assert.Equal(t, `^/chat/`, infos[0].Filters[channel.FieldPath])
}
