package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrymomot/channeled/core/channel"
)

// ErrConsumeLater signals that a message cannot be handled right now and
// should be requeued for a later delivery attempt. Workers cap redeliveries,
// so persistent failures are eventually dropped rather than looping forever.
var ErrConsumeLater = errors.New("consume later")

// Params holds parameters extracted from a message by routing filters, keyed
// by the named capture groups of the matching patterns.
type Params map[string]string

// Get returns the value for key, or "" if unset.
func (p Params) Get(key string) string {
	return p[key]
}

type (
	// Consumer handles messages dispatched by a worker. Name identifies the
	// consumer in logs and metrics.
	Consumer interface {
		Name() string
		Consume(ctx context.Context, msg channel.Message, params Params) error
	}

	// JSONFunc is a type-safe consumer function. The generic type T is the
	// expected shape of the message body.
	JSONFunc[T any] func(ctx context.Context, payload T, msg channel.Message, params Params) error
)

// Func adapts a plain function into a named Consumer.
func Func(name string, fn func(ctx context.Context, msg channel.Message, params Params) error) Consumer {
	return &funcConsumer{name: name, fn: fn}
}

// NewJSON creates a type-safe consumer that unmarshals the message body into
// T before invoking the function. The consumer name is derived from the
// payload type (e.g. "ChatPost").
func NewJSON[T any](fn JSONFunc[T]) Consumer {
	var payload T
	return &jsonConsumer[T]{
		name: typeName(payload),
		fn:   fn,
	}
}

type funcConsumer struct {
	name string
	fn   func(ctx context.Context, msg channel.Message, params Params) error
}

func (c *funcConsumer) Name() string { return c.name }

func (c *funcConsumer) Consume(ctx context.Context, msg channel.Message, params Params) error {
	return c.fn(ctx, msg, params)
}

type jsonConsumer[T any] struct {
	name string
	fn   JSONFunc[T]
}

func (c *jsonConsumer[T]) Name() string { return c.name }

func (c *jsonConsumer[T]) Consume(ctx context.Context, msg channel.Message, params Params) error {
	var payload T
	if len(msg.Body) > 0 {
		if err := json.Unmarshal(msg.Body, &payload); err != nil {
			return fmt.Errorf("decode %s body: %w", c.name, err)
		}
	}
	return c.fn(ctx, payload, msg, params)
}

// typeName extracts the type name from any value, removing pointer and
// package prefixes.
func typeName(v any) string {
	s := fmt.Sprintf("%T", v)
	s = strings.TrimLeft(s, "*")
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	return s
}
