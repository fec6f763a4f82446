package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// InitConfig creates a sample configuration file at the default location.
//
// Parameters:
//   - force: Overwrite an existing config file
//
// Returns:
//   - string: Path the config file was written to
//   - error: Generation or write error
func InitConfig(force bool) (string, error) {
	configPath := GetDefaultConfigPath()
	if err := InitConfigToPath(configPath, force); err != nil {
		return "", err
	}
	return configPath, nil
}

// InitConfigToPath creates a sample configuration file at the given path.
//
// Parent directories are created as needed. Without force, an existing file
// is an error.
//
// Parameters:
//   - path: Destination for the config file
//   - force: Overwrite an existing config file
//
// Returns:
//   - error: Generation or write error
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders the configuration as a commented YAML
// document suitable for hand editing.
//
// The document is re-parsed before returning so a rendering mistake can
// never produce an unloadable sample file.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var b strings.Builder

	b.WriteString("# Snapsink Configuration File\n")
	b.WriteString("#\n")
	b.WriteString("# Replicates btrfs snapshots into S3-compatible object storage.\n")
	b.WriteString("# Every value below can be overridden with a SNAPSINK_* environment\n")
	b.WriteString("# variable, e.g. SNAPSINK_LOGGING_LEVEL=DEBUG.\n")
	b.WriteString("\n")

	b.WriteString("logging:\n")
	b.WriteString("  # Minimum level to print: DEBUG, INFO, WARN, ERROR\n")
	fmt.Fprintf(&b, "  level: %q\n", cfg.Logging.Level)
	b.WriteString("  # Where logs go: stdout, stderr, or a file path\n")
	fmt.Fprintf(&b, "  output: %q\n", cfg.Logging.Output)
	b.WriteString("\n")

	b.WriteString("# Store snapshots are read from\n")
	b.WriteString("local:\n")
	writeStoreSection(&b, &cfg.Local)
	b.WriteString("\n")

	b.WriteString("# Store snapshots are replicated to\n")
	b.WriteString("remote:\n")
	writeStoreSection(&b, &cfg.Remote)
	b.WriteString("\n")

	b.WriteString("# Transfer journal: records in-flight uploads so interrupted\n")
	b.WriteString("# transfers can be reconciled with 'snapsink -mode gc'\n")
	b.WriteString("journal:\n")
	fmt.Fprintf(&b, "  disabled: %t\n", cfg.Journal.Disabled)
	fmt.Fprintf(&b, "  path: %q\n", cfg.Journal.Path)
	b.WriteString("\n")

	b.WriteString("# Reconciliation of interrupted uploads\n")
	b.WriteString("gc:\n")
	b.WriteString("  # Uploads younger than this are presumed to still be running\n")
	fmt.Fprintf(&b, "  min_age: %q\n", cfg.GC.MinAge)
	b.WriteString("  # Report what would be aborted without aborting anything\n")
	fmt.Fprintf(&b, "  dry_run: %t\n", cfg.GC.DryRun)

	out := b.String()

	// Re-parse to guarantee the sample is loadable
	var check Config
	if err := yaml.Unmarshal([]byte(out), &check); err != nil {
		return "", fmt.Errorf("generated config is not valid YAML: %w", err)
	}

	return out, nil
}

// writeStoreSection renders one store's type and option map.
func writeStoreSection(b *strings.Builder, cfg *StoreConfig) {
	b.WriteString("  # Store type: btrfs or s3\n")
	fmt.Fprintf(b, "  type: %q\n", cfg.Type)

	switch cfg.Type {
	case "btrfs":
		b.WriteString("  btrfs:\n")
		b.WriteString("    # Mounted btrfs filesystem scanned for read-only snapshots\n")
		fmt.Fprintf(b, "    path: %q\n", cfg.Btrfs["path"])
	case "s3":
		b.WriteString("  s3:\n")
		fmt.Fprintf(b, "    region: %q\n", cfg.S3["region"])
		fmt.Fprintf(b, "    bucket: %q\n", cfg.S3["bucket"])
		b.WriteString("    # Diffs are stored as <key_prefix><to>/<from>\n")
		fmt.Fprintf(b, "    key_prefix: %q\n", cfg.S3["key_prefix"])
		b.WriteString("    # Custom endpoint for MinIO, Localstack, Ceph RGW and friends\n")
		b.WriteString("    # endpoint: \"http://localhost:9000\"\n")
		b.WriteString("    # Static credentials; omit to use the default AWS credential chain\n")
		b.WriteString("    # access_key_id: \"\"\n")
		b.WriteString("    # secret_access_key: \"\"\n")
		b.WriteString("    # Upload part size in bytes\n")
		fmt.Fprintf(b, "    chunk_size: %d\n", cfg.S3["chunk_size"])
		b.WriteString("    # Ask the remote to encrypt stored diffs at rest\n")
		fmt.Fprintf(b, "    encrypt: %t\n", cfg.S3["encrypt"])
	}
}
