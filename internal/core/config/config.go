package config

import (
	"time"

	redisclient "github.com/vietddude/pumpwatch/internal/infra/redis"
	"github.com/vietddude/pumpwatch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	RPC       RPCConfig          `yaml:"rpc"`
	Contracts []ContractConfig   `yaml:"contracts"`
	Breaker   BreakerConfig      `yaml:"breaker"`
	Batch     BatchConfig        `yaml:"batch"`
	Storage   StorageConfig      `yaml:"storage"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
	Logging   LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// RPCConfig holds Soroban RPC endpoint settings.
type RPCConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ContractConfig holds settings for one monitored contract.
type ContractConfig struct {
	ID           string        `yaml:"id"`
	Name         string        `yaml:"name"`
	Kind         string        `yaml:"kind"` // factory, pair
	StartLedger  uint32        `yaml:"start_ledger"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PageLimit    int           `yaml:"page_limit"`
}

// BreakerConfig holds circuit breaker settings shared by all streams.
type BreakerConfig struct {
	Threshold int           `yaml:"threshold"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

// BatchConfig holds the event journal batcher settings.
type BatchConfig struct {
	MaxSize        int           `yaml:"max_size"`
	MaxWait        time.Duration `yaml:"max_wait"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	MaxQueue       int           `yaml:"max_queue"`
}

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // postgres, memory

	// Retention bounds the raw event journal by ledger close time.
	// Zero keeps everything.
	Retention time.Duration `yaml:"retention"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
