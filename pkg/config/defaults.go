package config

import (
	"path/filepath"
	"strings"
	"time"

	s3volume "github.com/snapsink/snapsink/pkg/volume/s3"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store option maps only gain keys they do not already have
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyStoreDefaults(&cfg.Local, "btrfs")
	applyStoreDefaults(&cfg.Remote, "s3")
	applyJournalDefaults(&cfg.Journal)
	applyGCDefaults(&cfg.GC)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyStoreDefaults sets store defaults for one end of the transfer.
func applyStoreDefaults(cfg *StoreConfig, defaultType string) {
	if cfg.Type == "" {
		cfg.Type = defaultType
	}

	// Initialize maps if nil
	if cfg.Btrfs == nil {
		cfg.Btrfs = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	// Apply defaults for the selected store type (for config file generation)
	switch cfg.Type {
	case "btrfs":
		if _, ok := cfg.Btrfs["path"]; !ok {
			cfg.Btrfs["path"] = "/mnt/snapshots"
		}
	case "s3":
		if _, ok := cfg.S3["chunk_size"]; !ok {
			cfg.S3["chunk_size"] = s3volume.DefaultChunkSize
		}
		if _, ok := cfg.S3["encrypt"]; !ok {
			cfg.S3["encrypt"] = true
		}
	}
}

// applyJournalDefaults sets transfer journal defaults.
func applyJournalDefaults(cfg *JournalConfig) {
	// Disabled defaults to false (journal on)

	if cfg.Path == "" {
		cfg.Path = filepath.Join(getDataDir(), "journal")
	}
}

// applyGCDefaults sets reconciliation defaults.
func applyGCDefaults(cfg *GCConfig) {
	if cfg.MinAge == 0 {
		cfg.MinAge = 24 * time.Hour
	}

	// DryRun defaults to false
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{},
		Local: StoreConfig{
			Type:  "btrfs",
			Btrfs: make(map[string]any),
		},
		Remote: StoreConfig{
			Type: "s3",
			// Illustrative remote so the generated sample names every
			// field a real deployment has to fill in.
			S3: map[string]any{
				"region":     "us-east-1",
				"bucket":     "my-snapshots",
				"key_prefix": "snapsink/",
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
