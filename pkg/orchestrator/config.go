package orchestrator

import "time"

const (
	DefaultBatchSize = 50
	DefaultMaxPages  = 1000
	DefaultLockTTL   = time.Hour
)

// Config tunes a sync pass.
type Config struct {
	// BatchSize bounds how many upserts run concurrently.
	BatchSize int
	// MaxPages is the page ceiling for one pass.
	MaxPages int
	// LockTTL is how long the per-integration lock lives without a keepalive.
	LockTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize: DefaultBatchSize,
		MaxPages:  DefaultMaxPages,
		LockTTL:   DefaultLockTTL,
	}
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	return c
}
