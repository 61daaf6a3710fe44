// Package channel provides the channel layer abstraction: named,
// capacity-bounded FIFO message queues with expiry and group fan-out
// semantics, plus an in-memory implementation suitable for single-process
// deployments and tests.
//
// A channel layer moves discrete messages between producers (protocol
// gateways, application code) and consumers (worker loops). Channels are
// identified by string names, hold at most a configured number of pending
// messages, and silently drop messages that outlive their expiry. Groups are
// named sets of channels that can be fanned out to together, with
// per-membership expiry so dead connections age out on their own.
//
// # Basic Usage
//
//	layer := channel.NewMemoryLayer()
//
//	ctx := context.Background()
//	go layer.Start(ctx) // background expiry manager
//
//	msg := channel.NewMessage([]byte(`{"text":"hi"}`), map[string]string{
//		channel.FieldPath: "/chat/lobby/",
//	})
//	if err := layer.Send(ctx, "chat.receive", msg); err != nil {
//		if errors.Is(err, channel.ErrChannelFull) {
//			// apply backpressure: drop, retry later, or disconnect the client
//		}
//	}
//
//	name, got, err := layer.Receive(ctx, []string{"chat.receive"}, true)
//
// # Groups
//
// Group membership carries its own expiry and must be refreshed periodically
// by long-lived members:
//
//	layer.GroupAdd(ctx, "room-lobby", replyChannel)
//	layer.SendGroup(ctx, "room-lobby", msg) // best-effort fan-out
//	layer.GroupDiscard(ctx, "room-lobby", replyChannel)
//
// SendGroup never fails because a single member is over capacity; full or
// invalid member channels are skipped. Backpressure remains a per-channel
// concern of direct Send calls.
//
// # Channel Names
//
// Names consist of ASCII letters, digits, hyphens, underscores, and periods,
// with at most one "!" or "?" separator: "chat.receive" is an ordinary
// channel, "chat.send!f3a9c1" is a single-reader channel that only the
// process that created it should receive from, and "chat.local?f3a9c1" is a
// process-local channel. Use NewChannel with a prefix ending in "!" or "?"
// to mint fresh reply channels.
//
// # Network-Backed Layers
//
// The Layer interface is implemented by network-backed layers under
// integration/layer (Redis, Postgres) for multi-process deployments. Code
// written against Layer, Sender, or Receiver works with any of them.
package channel
