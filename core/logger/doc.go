// Package logger provides slog attribute helpers shared across the library.
//
// Helpers follow the empty-Attr pattern for nil safety: a nil error or empty
// identifier yields an attribute slog silently drops, so call sites never
// need explicit nil checks:
//
//	log.Error("send failed", logger.Error(err), logger.Channel(name))
//
// Domain helpers (Channel, GroupName, MessageID, Consumer, WorkerID) keep
// attribute keys consistent across packages, which keeps structured logs
// queryable.
package logger
