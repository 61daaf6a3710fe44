package worker

import "time"

// Config holds worker tuning. Designed for environment-based configuration
// using popular env parsing libraries.
type Config struct {
	MaxConcurrent   int           `env:"WORKER_MAX_CONCURRENT" envDefault:"10"`
	MaxRetries      int           `env:"WORKER_MAX_RETRIES" envDefault:"10"`
	ConsumeTimeout  time.Duration `env:"WORKER_CONSUME_TIMEOUT" envDefault:"1m"`
	ShutdownTimeout time.Duration `env:"WORKER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	OnlyChannels    []string      `env:"WORKER_ONLY_CHANNELS" envSeparator:","`
	ExcludeChannels []string      `env:"WORKER_EXCLUDE_CHANNELS" envSeparator:","`
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   10,
		MaxRetries:      10,
		ConsumeTimeout:  time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}
