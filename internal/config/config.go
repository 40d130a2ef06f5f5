// Package config loads the process configuration from environment
// variables (optionally via a .env file), following the convention that
// secrets never live in a config file.
package config

// Config is the root configuration for the core process.
type Config struct {
	Database Database
	Redis    Redis
	Log      Log
}

// Database configures the Postgres connection. DSN has no default: the
// process refuses to start without one.
type Database struct {
	DSN          string
	MaxOpenConns int
}

// Redis configures the Streams connection used for both locking and queues.
type Redis struct {
	URL                  string
	IncomingStream       string
	OutgoingStream       string
	OutgoingStreamMaxLen int64
	ConsumerGroup        string
}

// Log configures the slog handler.
type Log struct {
	Level string
}
