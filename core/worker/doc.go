// Package worker runs the receive-and-dispatch loop: it blocks on a channel
// layer waiting for messages on every channel its router consumes, resolves
// each message to a consumer, and invokes consumers concurrently up to a
// configured cap.
//
//	w, err := worker.New(layer, router,
//		worker.WithMaxConcurrent(16),
//	)
//	if err != nil { ... }
//
//	go w.Start(ctx)
//	...
//	w.Stop()
//
// A consumer returning consumer.ErrConsumeLater has its message requeued
// with an incremented redelivery counter; messages exceeding the redelivery
// cap are dropped and counted. Panicking consumers are recovered and treated
// as failures so one bad handler cannot take the worker down. Unroutable
// messages are logged and counted, never fatal.
//
// Single-reader ("name!...") and process-local ("name?...") route entries
// are excluded from the worker's receive set: those channels belong to the
// gateway that minted them.
package worker
