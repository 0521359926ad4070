package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags and the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.Storage.Backend == "s3" {
		if bucket, _ := cfg.Storage.S3["bucket"].(string); strings.TrimSpace(bucket) == "" {
			return fmt.Errorf("storage.s3.bucket: required when storage.backend is s3")
		}
	}
	if cfg.Storage.Backend == "local" {
		if root, _ := cfg.Storage.Local["root_path"].(string); strings.TrimSpace(root) == "" {
			return fmt.Errorf("storage.local.root_path: required when storage.backend is local")
		}
	}
	if cfg.Auth.Required && cfg.Auth.JWTSecret == "" && cfg.Auth.JWKSURL == "" {
		return fmt.Errorf("auth: required is true but neither jwt_secret nor jwks_url is set")
	}
	return nil
}

// formatValidationError reports the first failure with its field path.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
