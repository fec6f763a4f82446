package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"
	"github.com/snapsink/snapsink/internal/logger"
	"github.com/snapsink/snapsink/pkg/journal"
	"github.com/snapsink/snapsink/pkg/volume"
	"github.com/snapsink/snapsink/pkg/volume/btrfs"
	s3volume "github.com/snapsink/snapsink/pkg/volume/s3"
)

// CreateStore creates a snapshot store based on configuration.
//
// This factory function uses the Type field to determine which store
// implementation to create, then decodes the type-specific configuration
// from the corresponding map and passes it to the store's constructor.
//
// Supported types:
//   - "btrfs": Uses pkg/volume/btrfs (snapshots on a mounted btrfs filesystem)
//   - "s3": Uses pkg/volume/s3 (Amazon S3 or compatible object storage)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Store configuration
//   - jnl: Transfer journal handed to S3 stores (nil turns journaling off)
//
// Returns:
//   - volume.Store: Initialized store
//   - error: Configuration or initialization error
func CreateStore(ctx context.Context, cfg *StoreConfig, jnl *journal.Journal) (volume.Store, error) {
	switch cfg.Type {
	case "btrfs":
		return createBtrfsStore(ctx, cfg.Btrfs)
	case "s3":
		return createS3Store(ctx, cfg.S3, jnl)
	default:
		return nil, fmt.Errorf("unknown store type: %q (supported: btrfs, s3)", cfg.Type)
	}
}

// createBtrfsStore creates a store reading snapshots from a btrfs mount.
func createBtrfsStore(ctx context.Context, options map[string]any) (volume.Store, error) {
	// Check context before creating store
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Define the configuration struct for the btrfs store
	type BtrfsStoreConfig struct {
		Path string `mapstructure:"path"`
	}

	// Decode the options into the config struct
	var storeCfg BtrfsStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode btrfs store config: %w", err)
	}

	// Validate required fields
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("btrfs store: path is required")
	}

	// Create the store
	store, err := btrfs.New(storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create btrfs store: %w", err)
	}

	return store, nil
}

// createS3Store creates a store backed by an S3 bucket.
func createS3Store(ctx context.Context, options map[string]any, jnl *journal.Journal) (volume.Store, error) {
	// Define the configuration struct for the S3 store
	type S3StoreConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		ChunkSize       int64  `mapstructure:"chunk_size"`
		Encrypt         bool   `mapstructure:"encrypt"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	// Decode the options into the config struct
	var storeCfg S3StoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 store config: %w", err)
	}

	// Validate required fields
	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 store: bucket is required")
	}

	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 store: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	// Set region
	configOptions = append(configOptions, awsConfig.WithRegion(storeCfg.Region))

	// Set custom endpoint if provided (for MinIO, Localstack, etc.)
	if storeCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               storeCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Set credentials if provided, otherwise use default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	// Configure retries for resilience against temporary S3 failures
	// Default to 10 retries if not specified (increased from AWS default of 3)
	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries // Retry for transient errors (502, 503, timeouts, etc.)
		})
	}))

	// Load AWS config
	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		// Force path-style addressing for compatibility with MinIO/Localstack
		if storeCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Store
	// ========================================================================

	store, err := s3volume.New(s3volume.Config{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		Prefix:    storeCfg.KeyPrefix,
		ChunkSize: storeCfg.ChunkSize,
		Encrypt:   storeCfg.Encrypt,
		Journal:   jnl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 store: %w", err)
	}

	logger.Info("S3 store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}

// CreateJournal opens the transfer journal named by the configuration.
//
// Returns nil without error when the journal is disabled; stores treat a nil
// journal as journaling off.
//
// Parameters:
//   - cfg: Journal configuration
//
// Returns:
//   - *journal.Journal: Open journal, or nil when disabled
//   - error: Journal open error
func CreateJournal(cfg *JournalConfig) (*journal.Journal, error) {
	if cfg.Disabled {
		return nil, nil
	}

	if cfg.Path == "" {
		return nil, fmt.Errorf("journal: path is required unless the journal is disabled")
	}

	jnl, err := journal.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %s: %w", cfg.Path, err)
	}

	return jnl, nil
}
