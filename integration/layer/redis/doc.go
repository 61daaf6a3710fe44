// Package redis provides a Redis-backed channel layer for multi-process
// deployments, plus client initialization with retry logic and health
// checking.
//
// The layer keeps one Redis LIST per channel holding message-key references,
// with the message payload stored under its own key with a TTL so expiry is
// enforced per message by Redis itself. Groups are sorted sets scored by
// membership deadline, pruned on access.
//
// # Usage
//
//	cfg := redis.Config{ConnectionURL: "redis://localhost:6379/0"}
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	layer := redis.NewLayer(client, channel.DefaultConfig())
//
//	err = layer.Send(ctx, "chat.receive", channel.NewMessage(body, nil))
//
// The layer implements channel.Layer; workers and gateways use it exactly
// like the in-memory layer. Multiple processes sharing a Redis instance see
// the same channels and groups.
//
// # Health Checking
//
// Healthcheck returns a function suitable for readiness probes:
//
//	check := redis.Healthcheck(client)
//	if err := check(ctx); err != nil { ... }
package redis
