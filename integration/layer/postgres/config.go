package postgres

import "time"

// Config holds the Postgres connection settings for the channel layer.
type Config struct {
	// ConnectionURL is the Postgres connection string.
	ConnectionURL string `env:"PG_URL,required"`

	// RetryAttempts is the number of connection attempts before giving up.
	RetryAttempts int `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`

	// RetryInterval is the pause between connection attempts.
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"5s"`

	// PollInterval is how often a blocking Receive re-checks for new rows.
	PollInterval time.Duration `env:"PG_POLL_INTERVAL" envDefault:"100ms"`

	// CleanupInterval is how often the background sweep deletes expired rows.
	CleanupInterval time.Duration `env:"PG_CLEANUP_INTERVAL" envDefault:"1m"`
}
