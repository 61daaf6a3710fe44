package postgres

import "errors"

var (
	// ErrEmptyConnectionURL is returned when the connection URL is empty.
	ErrEmptyConnectionURL = errors.New("empty connection URL")

	// ErrFailedToParseConnString is returned when the connection string cannot be parsed.
	ErrFailedToParseConnString = errors.New("failed to parse connection string")

	// ErrPostgresNotReady is returned when the database does not become reachable
	// within the configured retry budget.
	ErrPostgresNotReady = errors.New("postgres not ready")

	// ErrFailedToApplyMigrations is returned when schema migrations cannot be applied.
	ErrFailedToApplyMigrations = errors.New("failed to apply migrations")

	// ErrHealthcheckFailed is returned when the layer healthcheck fails.
	ErrHealthcheckFailed = errors.New("healthcheck failed")
)
