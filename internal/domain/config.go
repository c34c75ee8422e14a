package domain

import (
	"log/slog"
	"time"
)

type Config struct {
	DataDir    string       `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
	Production bool         `json:"production" yaml:"production"`
	Logger     *slog.Logger `json:"-" yaml:"-"`

	Engine EngineConfig `json:"engine" yaml:"engine"`
}

type EngineConfig struct {
	ExecutionTimeout    time.Duration `json:"execution_timeout" yaml:"execution_timeout"`
	NodeTimeout         time.Duration `json:"node_timeout" yaml:"node_timeout"`
	MaxRetries          int           `json:"max_retries" yaml:"max_retries"`
	RetryBaseDelay      time.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
	SyncWorkerLimit     int64         `json:"sync_worker_limit" yaml:"sync_worker_limit"`
	MaxActiveExecutions int           `json:"max_active_executions" yaml:"max_active_executions"`
}

func (c *Config) Validate() error {
	if c.Engine.MaxRetries < 0 {
		return ErrInvalidConfig
	}
	if c.Engine.SyncWorkerLimit < 0 {
		return ErrInvalidConfig
	}
	if c.Engine.RetryBaseDelay < 0 || c.Engine.NodeTimeout < 0 || c.Engine.ExecutionTimeout < 0 {
		return ErrInvalidConfig
	}
	return nil
}
