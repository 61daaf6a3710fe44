// Package health provides HTTP liveness and readiness probe handlers.
//
// Liveness reports that the process is running; Readiness verifies the
// service's dependencies through their healthcheck functions, which the
// channel layers and the worker all expose with the same signature.
//
//	mux.Handle("/health/live", health.Liveness())
//	mux.Handle("/health/ready", health.Readiness(logger,
//		layer.Healthcheck,
//		worker.Healthcheck,
//	))
package health
