package channel

import (
	"log/slog"
	"time"
)

// MemoryLayerOption configures a MemoryLayer.
type MemoryLayerOption func(*MemoryLayer)

// WithCapacity sets the per-channel pending message capacity.
func WithCapacity(n int) MemoryLayerOption {
	return func(ml *MemoryLayer) {
		if n > 0 {
			ml.capacity = n
		}
	}
}

// WithExpiry sets the message lifetime.
func WithExpiry(d time.Duration) MemoryLayerOption {
	return func(ml *MemoryLayer) {
		if d > 0 {
			ml.expiry = d
		}
	}
}

// WithGroupExpiry sets the group membership lifetime.
func WithGroupExpiry(d time.Duration) MemoryLayerOption {
	return func(ml *MemoryLayer) {
		if d > 0 {
			ml.groupExpiry = d
		}
	}
}

// WithMaxBodySize sets the maximum message body size in bytes.
func WithMaxBodySize(n int) MemoryLayerOption {
	return func(ml *MemoryLayer) {
		if n > 0 {
			ml.maxBodySize = n
		}
	}
}

// WithCleanupInterval sets the interval between background expiry sweeps.
func WithCleanupInterval(d time.Duration) MemoryLayerOption {
	return func(ml *MemoryLayer) {
		if d > 0 {
			ml.cleanupInterval = d
		}
	}
}

// WithMemoryLayerShutdownTimeout sets the graceful shutdown timeout.
func WithMemoryLayerShutdownTimeout(d time.Duration) MemoryLayerOption {
	return func(ml *MemoryLayer) {
		if d > 0 {
			ml.shutdownTimeout = d
		}
	}
}

// WithMemoryLayerLogger sets the logger for internal operations.
func WithMemoryLayerLogger(logger *slog.Logger) MemoryLayerOption {
	return func(ml *MemoryLayer) {
		if logger != nil {
			ml.logger = logger
		}
	}
}
