package worker

import "errors"

var (
	// ErrLayerNil is returned when a worker is created without a channel layer.
	ErrLayerNil = errors.New("channel layer cannot be nil")

	// ErrRouterNil is returned when a worker is created without a router.
	ErrRouterNil = errors.New("router cannot be nil")

	// ErrNoChannels is returned by Start when the receive set is empty after
	// applying only/exclude filters.
	ErrNoChannels = errors.New("no channels to receive from")

	// ErrHealthcheckFailed wraps worker healthcheck failures.
	ErrHealthcheckFailed = errors.New("worker healthcheck failed")

	// ErrWorkerNotRunning indicates the worker loop is not active.
	ErrWorkerNotRunning = errors.New("worker is not running")

	// ErrWorkerOverloaded indicates all concurrency slots are busy.
	ErrWorkerOverloaded = errors.New("worker is overloaded")
)
