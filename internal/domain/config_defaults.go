package domain

import (
	"log/slog"
	"time"
)

const (
	DefaultExecutionTimeout = 10 * time.Minute
	DefaultNodeTimeout      = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultRetryBaseDelay   = 60 * time.Second
	DefaultSyncWorkerLimit  = 16
)

func DefaultConfig() Config {
	return Config{
		Logger: slog.Default(),
		Engine: EngineConfig{
			ExecutionTimeout: DefaultExecutionTimeout,
			NodeTimeout:      DefaultNodeTimeout,
			MaxRetries:       DefaultMaxRetries,
			RetryBaseDelay:   DefaultRetryBaseDelay,
			SyncWorkerLimit:  DefaultSyncWorkerLimit,
		},
	}
}

// ApplyDefaults fills zero-valued fields so a partially specified config
// behaves like DefaultConfig for whatever it left out.
func (c *Config) ApplyDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Engine.ExecutionTimeout == 0 {
		c.Engine.ExecutionTimeout = DefaultExecutionTimeout
	}
	if c.Engine.NodeTimeout == 0 {
		c.Engine.NodeTimeout = DefaultNodeTimeout
	}
	if c.Engine.MaxRetries == 0 {
		c.Engine.MaxRetries = DefaultMaxRetries
	}
	if c.Engine.RetryBaseDelay == 0 {
		c.Engine.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.Engine.SyncWorkerLimit == 0 {
		c.Engine.SyncWorkerLimit = DefaultSyncWorkerLimit
	}
}
