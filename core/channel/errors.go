package channel

import "errors"

// Sentinel errors for channel layer operations. Use errors.Is() to check
// error types when deciding between backpressure and hard failures.
var (
	// ErrChannelFull is returned by Send when the target channel already
	// holds its configured capacity of pending messages.
	ErrChannelFull = errors.New("channel is over capacity")

	// ErrMessageTooLarge is returned by Send when the message body exceeds
	// the layer's configured maximum size.
	ErrMessageTooLarge = errors.New("message body exceeds maximum size")

	// ErrInvalidChannelName is returned when a channel name does not match
	// the allowed grammar or exceeds the maximum length.
	ErrInvalidChannelName = errors.New("invalid channel name")

	// ErrInvalidGroupName is returned when a group name does not match the
	// allowed grammar or exceeds the maximum length.
	ErrInvalidGroupName = errors.New("invalid group name")

	// ErrInvalidChannelPrefix is returned by NewChannel when the prefix does
	// not end with "!" or "?".
	ErrInvalidChannelPrefix = errors.New("new channel prefix must end with '!' or '?'")

	// ErrHealthcheckFailed wraps layer healthcheck failures.
	ErrHealthcheckFailed = errors.New("channel layer healthcheck failed")
)
