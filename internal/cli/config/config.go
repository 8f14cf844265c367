package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/apigee/apigee-templater/internal/logging"
	"github.com/apigee/apigee-templater/internal/server"
	"github.com/apigee/apigee-templater/internal/store"
)

// FileName is the config file name searched for, without extension
const FileName = "templater"

// Config represents the templater configuration
type Config struct {
	DataDir  string         `mapstructure:"data_dir"`
	Store    StoreConfig    `mapstructure:"store"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Generate GenerateConfig `mapstructure:"generate"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// StoreConfig selects where templates and features are kept
type StoreConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
	SQL     SQLConfig   `mapstructure:"sql"`
}

// RedisConfig represents the redis store configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// SQLConfig represents the SQL store configuration
type SQLConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// RemoteConfig represents the read-only remote template source
type RemoteConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// GenerateConfig represents bundle generation defaults
type GenerateConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Profile   string `mapstructure:"profile"`
	Project   string `mapstructure:"project"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Host string     `mapstructure:"host"`
	Auth AuthConfig `mapstructure:"auth"`
}

// AuthConfig represents API authentication. Users maps names to bcrypt
// hashes as printed by "templater serve hash-password".
type AuthConfig struct {
	JWTSecret string            `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration     `mapstructure:"token_ttl"`
	Users     map[string]string `mapstructure:"users"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads the configuration from templater.yaml. An explicit file is
// read when given; otherwise the current directory, its parents and
// $HOME/.templater are searched. Missing files fall back to defaults.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		if dir, err := FindConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".templater"))
		}
	}

	v.SetEnvPrefix("TEMPLATER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("generate.project", "TEMPLATER_GENERATE_PROJECT", "PROJECT"); err != nil {
		return nil, fmt.Errorf("failed to bind project variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	redis := store.DefaultRedisConfig()
	sql := store.DefaultSQLConfig()
	remote := store.DefaultRemoteConfig()

	v.SetDefault("data_dir", "data")
	v.SetDefault("store.backend", store.BackendFile)
	v.SetDefault("store.redis.addr", redis.Addr)
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", redis.DB)
	v.SetDefault("store.redis.prefix", redis.Prefix)
	v.SetDefault("store.sql.driver", sql.Driver)
	v.SetDefault("store.sql.dsn", sql.DSN)
	v.SetDefault("store.sql.table", sql.Table)
	v.SetDefault("remote.enabled", true)
	v.SetDefault("remote.base_url", remote.BaseURL)
	v.SetDefault("remote.timeout", remote.Timeout)
	v.SetDefault("generate.output_dir", "generated")
	v.SetDefault("generate.profile", "default")
	v.SetDefault("generate.project", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.auth.jwt_secret", "")
	v.SetDefault("server.auth.token_ttl", 24*time.Hour)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.development", false)
}

// FindConfigDir walks up from the working directory looking for
// templater.yaml or templater.yml
func FindConfigDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, ext := range []string{".yaml", ".yml"} {
			if _, err := os.Stat(filepath.Join(dir, FileName+ext)); err == nil {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s.yaml found", FileName)
		}
		dir = parent
	}
}

// StoreConfig converts the configuration for store.Open
func (c *Config) StoreConfig(fs afero.Fs) store.Config {
	config := store.Config{
		Backend: c.Store.Backend,
		DataDir: c.DataDir,
		Fs:      fs,
		Redis: store.RedisConfig{
			Addr:     c.Store.Redis.Addr,
			Password: c.Store.Redis.Password,
			DB:       c.Store.Redis.DB,
			Prefix:   c.Store.Redis.Prefix,
		},
		SQL: store.SQLConfig{
			Driver: c.Store.SQL.Driver,
			DSN:    c.Store.SQL.DSN,
			Table:  c.Store.SQL.Table,
		},
	}
	if c.Remote.Enabled {
		config.Remote = &store.RemoteConfig{
			BaseURL: c.Remote.BaseURL,
			Timeout: c.Remote.Timeout,
		}
	}
	return config
}

// LoggingConfig converts the configuration for logging.New
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:       c.Log.Level,
		Development: c.Log.Development,
	}
}

// ServerAuth converts the configuration for server.Config
func (c *Config) ServerAuth() server.AuthConfig {
	return server.AuthConfig{
		JWTSecret: c.Server.Auth.JWTSecret,
		TokenTTL:  c.Server.Auth.TokenTTL,
		Users:     c.Server.Auth.Users,
	}
}

// ServerAddress returns host:port
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Store.Backend {
	case store.BackendFile:
		if cfg.DataDir == "" {
			return fmt.Errorf("data_dir must be set for the file store")
		}
	case store.BackendRedis:
		if cfg.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr must be set for the redis store")
		}
	case store.BackendSQL:
		switch cfg.Store.SQL.Driver {
		case store.DriverSQLite, store.DriverPgx, store.DriverPostgres:
		default:
			return fmt.Errorf("store.sql.driver must be one of %s, %s, %s, got: %s",
				store.DriverSQLite, store.DriverPgx, store.DriverPostgres, cfg.Store.SQL.Driver)
		}
		if cfg.Store.SQL.DSN == "" {
			return fmt.Errorf("store.sql.dsn must be set for the sql store")
		}
	default:
		return fmt.Errorf("store.backend must be file, redis or sql, got: %s", cfg.Store.Backend)
	}

	if cfg.Remote.Enabled && !strings.HasPrefix(cfg.Remote.BaseURL, "http://") && !strings.HasPrefix(cfg.Remote.BaseURL, "https://") {
		return fmt.Errorf("remote.base_url must be an http(s) URL, got: %s", cfg.Remote.BaseURL)
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got: %d", cfg.Server.Port)
	}

	if cfg.Server.Auth.JWTSecret != "" && len(cfg.Server.Auth.JWTSecret) < 16 {
		return fmt.Errorf("server.auth.jwt_secret must be at least 16 characters")
	}

	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level is invalid: %w", err)
	}

	return nil
}
