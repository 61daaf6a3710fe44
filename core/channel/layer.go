package channel

import "context"

// Sender is the producing half of a channel layer.
type Sender interface {
	// Send appends a message to the named channel. It returns
	// ErrChannelFull when the channel already holds its capacity of
	// pending messages, ErrMessageTooLarge when the body exceeds the
	// configured limit, and ErrInvalidChannelName for malformed names.
	Send(ctx context.Context, channel string, msg Message) error
}

// Receiver is the consuming half of a channel layer.
type Receiver interface {
	// Receive returns the next unexpired message pending on any of the
	// named channels, FIFO per channel, together with the channel it was
	// read from. With block set, Receive waits until a message arrives or
	// the context is cancelled; otherwise it returns ("", Message{}, nil)
	// immediately when nothing is pending.
	Receive(ctx context.Context, channels []string, block bool) (string, Message, error)
}

// GroupManager maintains named sets of channels for fan-out delivery.
// Membership carries a per-entry expiry; long-lived members must refresh
// with periodic GroupAdd calls.
type GroupManager interface {
	// GroupAdd registers a channel in a group, resetting its membership
	// expiry if already present.
	GroupAdd(ctx context.Context, group, channel string) error

	// GroupDiscard removes a channel from a group. Removing an absent
	// member is not an error.
	GroupDiscard(ctx context.Context, group, channel string) error

	// GroupChannels returns the unexpired member channels of a group.
	GroupChannels(ctx context.Context, group string) ([]string, error)

	// SendGroup delivers a copy of the message to every unexpired member
	// channel, best-effort: full or invalid members are skipped, never
	// reported as errors.
	SendGroup(ctx context.Context, group string, msg Message) error
}

// Layer is a complete channel layer backend.
type Layer interface {
	Sender
	Receiver
	GroupManager

	// NewChannel mints a fresh, unused channel name from a prefix ending in
	// "!" (single-reader) or "?" (process-local).
	NewChannel(ctx context.Context, prefix string) (string, error)

	// Flush drops all pending messages and group memberships. Intended for
	// tests and development tooling.
	Flush(ctx context.Context) error
}
