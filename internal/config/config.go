// Package config provides configuration management for meetrec using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jmylchreest/meetrec/internal/urlutil"
)

// Default configuration values.
const (
	defaultServerPort        = 8080
	defaultServerTimeout     = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultMaxOpenConns      = 25
	defaultMaxIdleConns      = 10
	defaultConnMaxIdleTime   = 30 * time.Minute
	defaultMaxSessions       = 50
	defaultMaxChunkBytes     = 1 * 1024 * 1024 // 1MB per websocket frame
	defaultEncoderGrace      = 10 * time.Second
	defaultDownloadURLTTL    = 7 * 24 * time.Hour
	defaultReaperStaleness   = 24 * time.Hour
	defaultIngestReadTimeout = 60 * time.Second
	defaultStagingMaxAge     = 48 * time.Hour
)

// Secret is a credential-bearing string. Logging helpers redact values of
// this type, so DSNs and signing material never reach log output in clear.
type Secret string

// String implements fmt.Stringer with a masked value so accidental
// formatting of a Secret does not leak it.
func (Secret) String() string {
	return "[REDACTED]"
}

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Recording RecordingConfig `mapstructure:"recording"`
	Encoder   EncoderConfig   `mapstructure:"encoder"`
	Blobstore BlobstoreConfig `mapstructure:"blobstore"`
	Reaper    ReaperConfig    `mapstructure:"reaper"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             Secret        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	BaseDir    string `mapstructure:"base_dir"`
	StagingDir string `mapstructure:"staging_dir"`
	// StagingMaxAge is how long an abandoned staging directory may linger
	// before the startup sweep removes it.
	StagingMaxAge time.Duration `mapstructure:"staging_max_age"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// RecordingConfig holds recording session policy.
type RecordingConfig struct {
	// MaxSessions is the maximum number of concurrent recording sessions.
	MaxSessions int `mapstructure:"max_sessions"`
	// EncoderGracePeriod is how long Stop waits for the encoder to flush
	// and exit after end-of-input before killing it.
	EncoderGracePeriod time.Duration `mapstructure:"encoder_grace_period"`
	// MaxChunkSize is the largest accepted media chunk.
	// Supports human-readable values like "1MB", "512KB", or raw byte counts.
	MaxChunkSize ByteSize `mapstructure:"max_chunk_size"`
}

// EncoderConfig holds external encoder binary configuration.
type EncoderConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = auto-detect)
	LogLevel   string `mapstructure:"log_level"`   // ffmpeg -loglevel value
}

// BlobstoreConfig holds blob store configuration.
type BlobstoreConfig struct {
	RootDir string `mapstructure:"root_dir"`
	// PublicBaseURL is the externally reachable base for signed download URLs.
	PublicBaseURL string `mapstructure:"public_base_url"`
	SigningSecret Secret `mapstructure:"signing_secret"`
	// DownloadURLTTL is the validity window for generated download URLs.
	DownloadURLTTL time.Duration `mapstructure:"download_url_ttl"`
}

// ReaperConfig holds orphaned-record reconciliation configuration.
type ReaperConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Cron is a 6-field cron expression for the sweep schedule.
	Cron string `mapstructure:"cron"`
	// Staleness is how old a still-"recording" persisted record must be
	// before it is considered orphaned.
	Staleness time.Duration `mapstructure:"staleness"`
}

// IngestConfig holds websocket ingestion configuration.
type IngestConfig struct {
	// ReadTimeout bounds how long a connection may be silent before the
	// read loop gives up.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// EnableCompression negotiates per-message deflate with clients.
	EnableCompression bool `mapstructure:"enable_compression"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with MEETREC and use underscores for
// nesting. Example: MEETREC_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/meetrec")
		v.AddConfigPath("$HOME/.meetrec")
	}

	v.SetEnvPrefix("MEETREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "meetrec.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.staging_dir", "staging")
	v.SetDefault("storage.staging_max_age", defaultStagingMaxAge)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Recording defaults
	v.SetDefault("recording.max_sessions", defaultMaxSessions)
	v.SetDefault("recording.encoder_grace_period", defaultEncoderGrace)
	v.SetDefault("recording.max_chunk_size", defaultMaxChunkBytes)

	// Encoder defaults
	v.SetDefault("encoder.binary_path", "")
	v.SetDefault("encoder.log_level", "error")

	// Blobstore defaults
	v.SetDefault("blobstore.root_dir", "")
	v.SetDefault("blobstore.public_base_url", "http://localhost:8080")
	v.SetDefault("blobstore.signing_secret", "")
	v.SetDefault("blobstore.download_url_ttl", defaultDownloadURLTTL)

	// Reaper defaults
	v.SetDefault("reaper.enabled", true)
	v.SetDefault("reaper.cron", "0 0 * * * *") // Hourly (6-field cron)
	v.SetDefault("reaper.staleness", defaultReaperStaleness)

	// Ingest defaults
	v.SetDefault("ingest.read_timeout", defaultIngestReadTimeout)
	v.SetDefault("ingest.enable_compression", true)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	if err := urlutil.ValidateBaseURL(c.Blobstore.PublicBaseURL); err != nil {
		return fmt.Errorf("blobstore.public_base_url: %w", err)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Recording.MaxSessions < 1 {
		return fmt.Errorf("recording.max_sessions must be at least 1")
	}
	if c.Recording.EncoderGracePeriod <= 0 {
		return fmt.Errorf("recording.encoder_grace_period must be positive")
	}
	if c.Recording.MaxChunkSize < 1 {
		return fmt.Errorf("recording.max_chunk_size must be at least 1 byte")
	}

	if c.Reaper.Staleness <= 0 {
		return fmt.Errorf("reaper.staleness must be positive")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StagingPath returns the full path to the staging directory.
func (c *StorageConfig) StagingPath() string {
	return filepath.Join(c.BaseDir, c.StagingDir)
}

// RootPath returns the blob store root directory.
// If RootDir is set, returns it directly; otherwise returns
// {storageBaseDir}/recordings.
func (c *BlobstoreConfig) RootPath(storageBaseDir string) string {
	if c.RootDir != "" {
		return c.RootDir
	}
	return filepath.Join(storageBaseDir, "recordings")
}
