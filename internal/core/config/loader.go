package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/pumpwatch/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.RPC.Timeout == 0 {
		cfg.RPC.Timeout = 30 * time.Second
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendPostgres
	}

	for i := range cfg.Contracts {
		if cfg.Contracts[i].PollInterval == 0 {
			cfg.Contracts[i].PollInterval = 30 * time.Second
		}
		if cfg.Contracts[i].PageLimit == 0 {
			cfg.Contracts[i].PageLimit = 100
		}
		if cfg.Contracts[i].Kind == "" {
			cfg.Contracts[i].Kind = string(domain.ContractKindFactory)
		}
	}
}

func validate(cfg *AppConfig) error {
	if cfg.RPC.URL == "" {
		return fmt.Errorf("rpc.url is required")
	}
	if cfg.Storage.Backend != BackendPostgres && cfg.Storage.Backend != BackendMemory {
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendPostgres, BackendMemory, cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == BackendPostgres && cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required for the postgres backend")
	}
	if len(cfg.Contracts) == 0 {
		return fmt.Errorf("at least one contract is required")
	}

	seen := make(map[string]bool)
	for _, c := range cfg.Contracts {
		if c.ID == "" {
			return fmt.Errorf("contract id is required")
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate contract id %q", c.ID)
		}
		seen[c.ID] = true

		switch domain.ContractKind(c.Kind) {
		case domain.ContractKindFactory, domain.ContractKindPair:
		default:
			return fmt.Errorf("contract %s: kind must be %q or %q, got %q",
				c.ID, domain.ContractKindFactory, domain.ContractKindPair, c.Kind)
		}
	}
	return nil
}
