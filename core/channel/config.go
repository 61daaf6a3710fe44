package channel

import "time"

// Config holds channel layer tuning shared by all layer implementations.
// Designed for environment-based configuration using popular env parsing
// libraries.
type Config struct {
	// Capacity is the maximum number of pending messages per channel before
	// Send returns ErrChannelFull.
	Capacity int `env:"CHANNEL_CAPACITY" envDefault:"100"`

	// Expiry is how long a pending message stays deliverable.
	Expiry time.Duration `env:"CHANNEL_EXPIRY" envDefault:"60s"`

	// GroupExpiry is how long a group membership lasts without a refreshing
	// GroupAdd.
	GroupExpiry time.Duration `env:"CHANNEL_GROUP_EXPIRY" envDefault:"24h"`

	// MaxBodySize bounds message bodies in bytes.
	MaxBodySize int `env:"CHANNEL_MAX_BODY_SIZE" envDefault:"1048576"`

	// CleanupInterval is how often background expiry sweeps run.
	CleanupInterval time.Duration `env:"CHANNEL_CLEANUP_INTERVAL" envDefault:"1s"`

	// ShutdownTimeout bounds graceful shutdown of background sweeps.
	ShutdownTimeout time.Duration `env:"CHANNEL_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DefaultConfig returns sensible defaults matching a single-process
// development setup.
func DefaultConfig() Config {
	return Config{
		Capacity:        100,
		Expiry:          time.Minute,
		GroupExpiry:     24 * time.Hour,
		MaxBodySize:     1 << 20,
		CleanupInterval: time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}
