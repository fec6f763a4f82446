package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsApplied(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Write minimal config
	configContent := `
logging:
  level: "INFO"

local:
  type: "btrfs"
  btrfs:
    path: "/mnt/snapshots"

remote:
  type: "s3"
  s3:
    region: "us-east-1"
    bucket: "backups"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	// Load config
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.GC.MinAge != 24*time.Hour {
		t.Errorf("Expected default gc min_age 24h, got %v", cfg.GC.MinAge)
	}
	if cfg.Journal.Disabled {
		t.Error("Expected journal enabled by default")
	}
	if cfg.Journal.Path == "" {
		t.Error("Expected default journal path to be set")
	}
	if enc, ok := cfg.Remote.S3["encrypt"]; !ok || enc != true {
		t.Errorf("Expected default encrypt true, got %v", enc)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Use a temporary directory with a non-existent config file path
	// This ensures we don't load the user's config from ~/.config/snapsink/
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	// Verify defaults
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Local.Type != "btrfs" {
		t.Errorf("Expected default local type 'btrfs', got %q", cfg.Local.Type)
	}
	if cfg.Remote.Type != "s3" {
		t.Errorf("Expected default remote type 's3', got %q", cfg.Remote.Type)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	// Write invalid YAML
	configContent := `
logging:
  level: INFO
  invalid yaml here [[[
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	// Should return error
	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
local:
  type: "zfs"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected validation error for unknown store type, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configContent := `
[logging]
level = "WARN"

[local]
type = "btrfs"

[local.btrfs]
path = "/mnt/pool"

[remote]
type = "s3"

[remote.s3]
region = "us-east-1"
bucket = "backups"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if path := cfg.Local.Btrfs["path"]; path != "/mnt/pool" {
		t.Errorf("Expected btrfs path '/mnt/pool', got %v", path)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	// Verify all defaults are set
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Local.Type != "btrfs" {
		t.Errorf("Expected default local type 'btrfs', got %q", cfg.Local.Type)
	}
	if cfg.Remote.Type != "s3" {
		t.Errorf("Expected default remote type 's3', got %q", cfg.Remote.Type)
	}
	if cfg.Journal.Disabled {
		t.Error("Expected journal enabled by default")
	}
	if cfg.GC.MinAge != 24*time.Hour {
		t.Errorf("Expected default gc min_age 24h, got %v", cfg.GC.MinAge)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
	if filepath.Base(filepath.Dir(path)) != "snapsink" {
		t.Errorf("Expected directory name 'snapsink', got %q", filepath.Base(filepath.Dir(path)))
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()

	if filepath.Base(dir) != "snapsink" {
		t.Errorf("Expected directory name 'snapsink', got %q", filepath.Base(dir))
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// Set environment variables
	_ = os.Setenv("SNAPSINK_LOGGING_LEVEL", "ERROR")
	_ = os.Setenv("SNAPSINK_GC_DRY_RUN", "true")
	defer func() {
		_ = os.Unsetenv("SNAPSINK_LOGGING_LEVEL")
		_ = os.Unsetenv("SNAPSINK_GC_DRY_RUN")
	}()

	// Create minimal config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

local:
  type: "btrfs"
  btrfs:
    path: "/mnt/snapshots"

remote:
  type: "s3"
  s3:
    region: "us-east-1"
    bucket: "backups"

gc:
  min_age: "24h"
  dry_run: false
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify environment variables override config file
	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if !cfg.GC.DryRun {
		t.Error("Expected dry_run true from env var")
	}
}
