package config

import (
	"fmt"
	"os"
)

// Record stores accepted by RecordsConfig.Store.
const (
	RecordsMemory   = "memory"
	RecordsPostgres = "postgres"
)

const EnvRecordsStore = "RECORDS_STORE"

// RecordsConfig selects where record attributes are persisted.
type RecordsConfig struct {
	Store string `toml:"store"`
}

func (c *RecordsConfig) Finalize() error {
	if c.Store == "" {
		c.Store = RecordsMemory
	}
	if v := os.Getenv(EnvRecordsStore); v != "" {
		c.Store = v
	}

	switch c.Store {
	case RecordsMemory, RecordsPostgres:
		return nil
	default:
		return fmt.Errorf("invalid store: %s (must be memory or postgres)", c.Store)
	}
}

func (c *RecordsConfig) Merge(overlay *RecordsConfig) {
	if overlay.Store != "" {
		c.Store = overlay.Store
	}
}
