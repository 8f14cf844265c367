package store

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Backend names accepted by Open.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendSQL   = "sql"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	// DataDir is the file backend root
	DataDir string
	Fs      afero.Fs
	Redis   RedisConfig
	SQL     SQLConfig
	// Remote, when set, serves entities missing locally
	Remote *RemoteConfig
}

// DefaultConfig stores files below ./data.
func DefaultConfig() Config {
	return Config{
		Backend: BackendFile,
		DataDir: "data",
		Redis:   DefaultRedisConfig(),
		SQL:     DefaultSQLConfig(),
	}
}

// Open builds the configured backend, wrapped with the remote fallback
// when one is configured. The returned close function releases
// connections.
func Open(ctx context.Context, config Config, logger *zap.Logger) (Backend, func() error, error) {
	var (
		backend Backend
		closer  = func() error { return nil }
	)
	switch config.Backend {
	case BackendFile, "":
		backend = NewFileBackend(config.Fs, config.DataDir)
	case BackendRedis:
		r, err := NewRedisBackend(config.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Redis.Addr, err)
		}
		backend, closer = r, r.Close
	case BackendSQL:
		s, err := OpenSQLBackend(ctx, config.SQL)
		if err != nil {
			return nil, nil, err
		}
		backend, closer = s, s.Close
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", config.Backend)
	}

	if config.Remote != nil && config.Remote.BaseURL != "" {
		backend = NewFallbackBackend(backend, NewRemoteBackend(*config.Remote, nil), logger)
	}
	return backend, closer, nil
}
