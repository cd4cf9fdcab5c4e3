// Package msgstore archives rejected send requests so operators can inspect
// them after the rejection callback has been sent.
package msgstore

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a requested object does not exist.
	ErrNotFound = errors.New("msgstore: object not found")
	// ErrInvalidKey is returned for keys that are empty or contain path separators.
	ErrInvalidKey = errors.New("msgstore: invalid key")
)

// ObjectStore is a flat key/value blob store.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// validKey reports whether key names a single flat object. Archive keys
// are derived from item ids and never contain separators.
func validKey(key string) bool {
	return key != "" && key != "." && key != ".." && !strings.ContainsAny(key, `/\`)
}

// Config holds configuration for creating an ObjectStore.
type Config struct {
	Type       string `mapstructure:"type"` // "none", "local" or "s3"
	Path       string `mapstructure:"path"` // base directory for local store
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
	S3Region   string `mapstructure:"s3_region"`
}

// New creates an ObjectStore based on the provided configuration. It
// returns nil for type "none". An unsupported type falls back to local
// storage with a warning.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (ObjectStore, error) {
	switch cfg.Type {
	case "none":
		return nil, nil
	case "local":
		return NewLocalFileStore(cfg.Path)
	case "s3":
		return NewS3StoreFromConfig(ctx, cfg)
	default:
		logger.Warn().
			Str("type", cfg.Type).
			Msg("unsupported or empty archive type, defaulting to local")
		return NewLocalFileStore(cfg.Path)
	}
}
