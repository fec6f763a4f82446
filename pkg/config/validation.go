package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Validate local and remote name different stores. Replicating a store
	// into itself is always a configuration mistake.
	if cfg.Local.Type == cfg.Remote.Type {
		switch cfg.Local.Type {
		case "btrfs":
			localPath, ok := cfg.Local.Btrfs["path"].(string)
			remotePath, rok := cfg.Remote.Btrfs["path"].(string)
			if ok && rok && localPath != "" && localPath == remotePath {
				return fmt.Errorf("remote: must name a different store than local (both btrfs path %q)", localPath)
			}
		case "s3":
			localBucket, ok := cfg.Local.S3["bucket"].(string)
			remoteBucket, rok := cfg.Remote.S3["bucket"].(string)
			if ok && rok && localBucket != "" && localBucket == remoteBucket {
				localPrefix, _ := cfg.Local.S3["key_prefix"].(string)
				remotePrefix, _ := cfg.Remote.S3["key_prefix"].(string)
				if localPrefix == remotePrefix {
					return fmt.Errorf("remote: must name a different store than local (both s3 bucket %q prefix %q)", localBucket, localPrefix)
				}
			}
		}
	}

	// Validate the journal has somewhere to live when it is on
	if !cfg.Journal.Disabled && cfg.Journal.Path == "" {
		return fmt.Errorf("journal: path is required unless the journal is disabled")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
