package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/storagebox/internal/telemetry"
	"github.com/marmos91/storagebox/pkg/uploadtoken"
)

var validate = validator.New()

// Validate validates the configuration using struct tags and custom rules.
// Call it after ApplyDefaults.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	switch cfg.Metadata.Type {
	case MetadataBadger:
		if err := validate.Struct(cfg.Metadata.Badger); err != nil {
			return fmt.Errorf("metadata.badger: %w", formatValidationError(err))
		}
	case MetadataPostgres:
		if err := cfg.Metadata.Postgres.Validate(); err != nil {
			return fmt.Errorf("metadata.postgres: %w", err)
		}
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	ids := make(map[string]bool, len(cfg.Storage.Backends))
	for i, def := range cfg.Storage.Backends {
		if ids[def.ID] {
			return fmt.Errorf("storage.backends[%d]: duplicate backend id %q", i, def.ID)
		}
		ids[def.ID] = true
	}
	// An empty list defers to backends registered at runtime.
	if len(ids) > 0 && !ids[cfg.Storage.DefaultBackend] {
		return fmt.Errorf("storage.default_backend: %q is not one of storage.backends", cfg.Storage.DefaultBackend)
	}

	if s := cfg.Uploads.Secret; s != "" && len(s) < uploadtoken.MinSecretLength {
		return fmt.Errorf("uploads.secret: must be at least %d characters", uploadtoken.MinSecretLength)
	}
	if cfg.Uploads.MinimumThroughput == 0 {
		return fmt.Errorf("uploads.minimum_throughput: must be positive")
	}

	if cfg.Telemetry.Profiling.Enabled {
		known := telemetry.ProfileTypeNames()
		for _, name := range cfg.Telemetry.Profiling.ProfileTypes {
			if !slices.Contains(known, name) {
				return fmt.Errorf("telemetry.profiling.profile_types: unknown type %q (want one of %v)", name, known)
			}
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
