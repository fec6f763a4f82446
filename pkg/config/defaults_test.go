package config

import (
	"testing"
	"time"

	s3volume "github.com/snapsink/snapsink/pkg/volume/s3"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_NormalizesLevel(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "debug"},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
}

func TestApplyDefaults_LocalStore(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Local.Type != "btrfs" {
		t.Errorf("Expected default local type 'btrfs', got %q", cfg.Local.Type)
	}
	if cfg.Local.Btrfs == nil {
		t.Fatal("Expected Btrfs map to be initialized")
	}
	if path, ok := cfg.Local.Btrfs["path"]; !ok || path != "/mnt/snapshots" {
		t.Errorf("Expected default btrfs path '/mnt/snapshots', got %v", path)
	}
}

func TestApplyDefaults_RemoteStore(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Remote.Type != "s3" {
		t.Errorf("Expected default remote type 's3', got %q", cfg.Remote.Type)
	}
	if cfg.Remote.S3 == nil {
		t.Fatal("Expected S3 map to be initialized")
	}
	if size, ok := cfg.Remote.S3["chunk_size"]; !ok || size != s3volume.DefaultChunkSize {
		t.Errorf("Expected default chunk_size %d, got %v", s3volume.DefaultChunkSize, size)
	}
	if enc, ok := cfg.Remote.S3["encrypt"]; !ok || enc != true {
		t.Errorf("Expected default encrypt true, got %v", enc)
	}
}

func TestApplyDefaults_Journal(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Journal.Disabled {
		t.Error("Expected journal enabled by default")
	}
	if cfg.Journal.Path == "" {
		t.Error("Expected default journal path to be set")
	}
}

func TestApplyDefaults_GC(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.GC.MinAge != 24*time.Hour {
		t.Errorf("Expected default min_age 24h, got %v", cfg.GC.MinAge)
	}
	if cfg.GC.DryRun {
		t.Error("Expected dry_run to default to false")
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Output: "/var/log/snapsink.log",
		},
		Local: StoreConfig{
			Type: "btrfs",
			Btrfs: map[string]any{
				"path": "/srv/pool",
			},
		},
		Remote: StoreConfig{
			Type: "s3",
			S3: map[string]any{
				"bucket":  "backups",
				"encrypt": false,
			},
		},
		Journal: JournalConfig{
			Disabled: true,
			Path:     "/var/lib/snapsink/journal",
		},
		GC: GCConfig{
			MinAge: time.Hour,
			DryRun: true,
		},
	}

	ApplyDefaults(cfg)

	// Verify explicit values were preserved
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected explicit level 'DEBUG' to be preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "/var/log/snapsink.log" {
		t.Errorf("Expected explicit output to be preserved, got %q", cfg.Logging.Output)
	}
	if cfg.Local.Btrfs["path"] != "/srv/pool" {
		t.Errorf("Expected explicit btrfs path to be preserved, got %v", cfg.Local.Btrfs["path"])
	}
	if cfg.Remote.S3["encrypt"] != false {
		t.Errorf("Expected explicit encrypt false to be preserved, got %v", cfg.Remote.S3["encrypt"])
	}
	if !cfg.Journal.Disabled {
		t.Error("Expected explicit journal disabled to be preserved")
	}
	if cfg.Journal.Path != "/var/lib/snapsink/journal" {
		t.Errorf("Expected explicit journal path to be preserved, got %q", cfg.Journal.Path)
	}
	if cfg.GC.MinAge != time.Hour {
		t.Errorf("Expected explicit min_age 1h to be preserved, got %v", cfg.GC.MinAge)
	}
	if !cfg.GC.DryRun {
		t.Error("Expected explicit dry_run true to be preserved")
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	// The default config should pass validation
	err := Validate(cfg)
	if err != nil {
		t.Errorf("Default config should be valid, got error: %v", err)
	}
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level == "" {
		t.Error("Default config missing logging level")
	}
	if cfg.Local.Type == "" {
		t.Error("Default config missing local store type")
	}
	if cfg.Remote.Type == "" {
		t.Error("Default config missing remote store type")
	}
	if cfg.Remote.S3["bucket"] == "" {
		t.Error("Default config missing remote bucket")
	}
	if cfg.Journal.Path == "" {
		t.Error("Default config missing journal path")
	}
}
