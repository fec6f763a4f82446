package config

import (
	"context"
	"strings"
	"testing"
)

func TestCreateStore_Btrfs(t *testing.T) {
	ctx := context.Background()
	cfg := &StoreConfig{
		Type: "btrfs",
		Btrfs: map[string]any{
			"path": t.TempDir(),
		},
	}

	store, err := CreateStore(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create btrfs store: %v", err)
	}

	if store == nil {
		t.Fatal("Expected non-nil store")
	}
}

func TestCreateStore_BtrfsMissingPath(t *testing.T) {
	ctx := context.Background()
	cfg := &StoreConfig{
		Type:  "btrfs",
		Btrfs: map[string]any{},
	}

	_, err := CreateStore(ctx, cfg, nil)
	if err == nil {
		t.Fatal("Expected error for missing path")
	}
	if !strings.Contains(err.Error(), "path is required") {
		t.Errorf("Expected 'path is required' error, got: %v", err)
	}
}

func TestCreateStore_BtrfsMissingMount(t *testing.T) {
	ctx := context.Background()
	cfg := &StoreConfig{
		Type: "btrfs",
		Btrfs: map[string]any{
			"path": "/does/not/exist",
		},
	}

	_, err := CreateStore(ctx, cfg, nil)
	if err == nil {
		t.Fatal("Expected error for missing mount point")
	}
	if !strings.Contains(err.Error(), "failed to create btrfs store") {
		t.Errorf("Expected wrapped store creation error, got: %v", err)
	}
}

func TestCreateStore_S3(t *testing.T) {
	ctx := context.Background()
	cfg := &StoreConfig{
		Type: "s3",
		S3: map[string]any{
			"region":            "us-east-1",
			"bucket":            "backups",
			"key_prefix":        "snapsink/",
			"endpoint":          "http://localhost:9000",
			"access_key_id":     "test",
			"secret_access_key": "test",
		},
	}

	store, err := CreateStore(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create S3 store: %v", err)
	}

	if store == nil {
		t.Fatal("Expected non-nil store")
	}
}

func TestCreateStore_S3MissingBucket(t *testing.T) {
	ctx := context.Background()
	cfg := &StoreConfig{
		Type: "s3",
		S3: map[string]any{
			"region": "us-east-1",
		},
	}

	_, err := CreateStore(ctx, cfg, nil)
	if err == nil {
		t.Fatal("Expected error for missing bucket")
	}
	if !strings.Contains(err.Error(), "bucket is required") {
		t.Errorf("Expected 'bucket is required' error, got: %v", err)
	}
}

func TestCreateStore_S3MissingRegion(t *testing.T) {
	ctx := context.Background()
	cfg := &StoreConfig{
		Type: "s3",
		S3: map[string]any{
			"bucket": "backups",
		},
	}

	_, err := CreateStore(ctx, cfg, nil)
	if err == nil {
		t.Fatal("Expected error for missing region")
	}
	if !strings.Contains(err.Error(), "region is required") {
		t.Errorf("Expected 'region is required' error, got: %v", err)
	}
}

func TestCreateStore_UnknownType(t *testing.T) {
	ctx := context.Background()
	cfg := &StoreConfig{
		Type: "zfs",
	}

	_, err := CreateStore(ctx, cfg, nil)
	if err == nil {
		t.Fatal("Expected error for unknown store type")
	}
	if !strings.Contains(err.Error(), "unknown store type") {
		t.Errorf("Expected 'unknown store type' error, got: %v", err)
	}
}

func TestCreateStore_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	cfg := &StoreConfig{
		Type: "btrfs",
		Btrfs: map[string]any{
			"path": t.TempDir(),
		},
	}

	_, err := CreateStore(ctx, cfg, nil)
	if err == nil {
		t.Fatal("Expected error for canceled context")
	}
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled error, got: %v", err)
	}
}

func TestCreateJournal(t *testing.T) {
	cfg := &JournalConfig{
		Path: t.TempDir(),
	}

	jnl, err := CreateJournal(cfg)
	if err != nil {
		t.Fatalf("Failed to create journal: %v", err)
	}
	if jnl == nil {
		t.Fatal("Expected non-nil journal")
	}

	if err := jnl.Close(); err != nil {
		t.Errorf("Failed to close journal: %v", err)
	}
}

func TestCreateJournal_Disabled(t *testing.T) {
	cfg := &JournalConfig{
		Disabled: true,
	}

	jnl, err := CreateJournal(cfg)
	if err != nil {
		t.Fatalf("Expected no error for disabled journal, got: %v", err)
	}
	if jnl != nil {
		t.Error("Expected nil journal when disabled")
	}
}

func TestCreateJournal_MissingPath(t *testing.T) {
	cfg := &JournalConfig{}

	_, err := CreateJournal(cfg)
	if err == nil {
		t.Fatal("Expected error for enabled journal without a path")
	}
	if !strings.Contains(err.Error(), "path is required") {
		t.Errorf("Expected 'path is required' error, got: %v", err)
	}
}
