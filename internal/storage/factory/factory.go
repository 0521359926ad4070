// Package factory builds an ObjectStore from a backend name and its
// options map as read from configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/manishnupt/mynx-file-hive/internal/storage"
	"github.com/manishnupt/mynx-file-hive/internal/storage/local"
	"github.com/manishnupt/mynx-file-hive/internal/storage/memory"
	s3backend "github.com/manishnupt/mynx-file-hive/internal/storage/s3"
)

// New creates a backend. options is the raw config subtree for that
// backend (e.g. storage.s3) and may be nil for "memory".
func New(ctx context.Context, backendType string, options map[string]any) (storage.ObjectStore, error) {
	switch backendType {
	case "s3":
		var cfg s3backend.Config
		if err := decode(options, &cfg); err != nil {
			return nil, fmt.Errorf("invalid s3 config: %w", err)
		}
		return s3backend.New(ctx, cfg)
	case "local":
		var cfg local.Config
		if err := decode(options, &cfg); err != nil {
			return nil, fmt.Errorf("invalid local config: %w", err)
		}
		return local.New(cfg)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
}

func decode(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
