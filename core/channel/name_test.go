package channel_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/channeled/core/channel"
)

func TestValidChannelName(t *testing.T) {
	t.Parallel()

	valid := []string{
		"http.request",
		"websocket.receive",
		"chat.send!f3a9c1",
		"chat.local?f3a9c1",
		"a",
		"with-dash_and.dot",
		"name!",
		"name?",
	}
	for _, name := range valid {
		assert.True(t, channel.ValidChannelName(name), name)
	}

	invalid := []string{
		"",
		"has space",
		"has/slash",
		"double!bang!x",
		"bang!then?mark",
		"!leading",
		"?leading",
		strings.Repeat("x", channel.MaxNameLength+1),
	}
	for _, name := range invalid {
		assert.False(t, channel.ValidChannelName(name), name)
	}
}

func TestValidGroupName(t *testing.T) {
	t.Parallel()

	assert.True(t, channel.ValidGroupName("room-lobby"))
	assert.True(t, channel.ValidGroupName("room.42_a"))
	assert.False(t, channel.ValidGroupName(""))
	assert.False(t, channel.ValidGroupName("no!separators"))
	assert.False(t, channel.ValidGroupName("no?separators"))
	assert.False(t, channel.ValidGroupName(strings.Repeat("g", channel.MaxNameLength+1)))
}

func TestChannelNameKinds(t *testing.T) {
	t.Parallel()

	assert.True(t, channel.SingleReader("chat.send!abc"))
	assert.False(t, channel.SingleReader("chat.receive"))
	assert.True(t, channel.Local("chat.local?abc"))
	assert.False(t, channel.Local("chat.send!abc"))
}

func TestBaseName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "chat.send!", channel.BaseName("chat.send!f3a9c1"))
	assert.Equal(t, "chat.local?", channel.BaseName("chat.local?f3a9c1"))
	assert.Equal(t, "chat.receive", channel.BaseName("chat.receive"))
}
