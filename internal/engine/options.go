package engine

import (
	"log"

	"example.com/syncengine/internal/journal"
)

type sessionConfig struct {
	logger      *log.Logger
	journal     *journal.Journal
	eventBuffer int
}

// SessionOption configures optional behaviour for a session.
type SessionOption func(*sessionConfig)

// WithLogger overrides the session logger.
func WithLogger(logger *log.Logger) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.logger = logger
	}
}

// WithJournal attaches an advisory operation journal.
func WithJournal(jnl *journal.Journal) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.journal = jnl
	}
}

// WithEventBuffer sizes the change-notification channel.
func WithEventBuffer(size int) SessionOption {
	return func(cfg *sessionConfig) {
		cfg.eventBuffer = size
	}
}

func newSessionConfig(prefix string, opts []SessionOption) sessionConfig {
	cfg := sessionConfig{
		logger: log.New(log.Writer(), prefix, log.LstdFlags),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
