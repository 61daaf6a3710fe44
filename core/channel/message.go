package channel

import (
	"time"

	"github.com/google/uuid"
)

// Well-known field keys used by routing filters and protocol gateways.
const (
	// FieldPath carries the request path a message originated from, matched
	// by path-based routing filters.
	FieldPath = "path"

	// FieldReplyChannel names the single-reader channel a consumer should
	// send responses to.
	FieldReplyChannel = "reply_channel"

	// FieldCloseConnection instructs a gateway forwarder to close the client
	// connection after delivering the message. Any non-empty value closes.
	FieldCloseConnection = "close"
)

// Message is a discrete unit of work moved through a channel layer.
//
// Fields holds small string metadata that routing filters match against
// (path, reply channel, protocol specifics); Body is the opaque payload a
// consumer decodes itself. Retries counts redeliveries performed by a worker
// and Enqueued is stamped by the layer on send to drive expiry.
type Message struct {
	ID       string            `json:"id"`
	Channel  string            `json:"channel,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	Body     []byte            `json:"body,omitempty"`
	Retries  int               `json:"retries,omitempty"`
	Enqueued time.Time         `json:"enqueued"`
}

// NewMessage creates a message with a generated ID. The fields map is used
// as-is; pass nil when no routable metadata is needed.
func NewMessage(body []byte, fields map[string]string) Message {
	return Message{
		ID:     uuid.NewString(),
		Fields: fields,
		Body:   body,
	}
}

// Field returns the value of a metadata field, or "" if unset.
func (m Message) Field(key string) string {
	return m.Fields[key]
}

// ReplyChannel returns the reply channel field, or "" if the message carries
// none.
func (m Message) ReplyChannel() string {
	return m.Fields[FieldReplyChannel]
}

// Path returns the path field, or "" if the message carries none.
func (m Message) Path() string {
	return m.Fields[FieldPath]
}

// ExpiredAt reports whether the message is past its lifetime at the given
// instant. Messages with a zero Enqueued time never expire.
func (m Message) ExpiredAt(now time.Time, expiry time.Duration) bool {
	if m.Enqueued.IsZero() {
		return false
	}
	return now.After(m.Enqueued.Add(expiry))
}
