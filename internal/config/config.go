package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Restore target
	DatabaseName string

	// Backup artifact I/O
	BackupFileName string
	SourceURL      string
	SigningKey     string
	CacheDir       string
	DataDir        string

	SQL SQLConfig

	WarmupDelay    time.Duration
	DropAttempts   int
	DropDelay      time.Duration
	RestoreTimeout time.Duration
}

type SQLConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Defaults match the environment the operator is deployed into: a SQL Server
// Linux container with its stock data directory, and a sidecar-mounted cache.
const (
	defaultCacheDir = "/var/opt/mssql/backup"
	defaultDataDir  = "/var/opt/mssql/data"

	defaultWarmupDelay    = 5 * time.Second
	defaultDropAttempts   = 3
	defaultDropDelay      = 2 * time.Second
	defaultRestoreTimeout = 5 * time.Minute
)

// Load reads config from environment variables, applies defaults and validates.
func Load() (Config, error) {
	get := func(key, def string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return def
	}

	parseInt := func(key string, def int) int {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return n
			}
		}
		return def
	}

	parseDur := func(key string, def time.Duration) time.Duration {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				return d
			}
		}
		return def
	}

	cfg := Config{
		DatabaseName: strings.TrimSpace(get("DATABASE_NAME", "")),

		BackupFileName: strings.TrimSpace(get("BACKUP_FILE_NAME", "")),
		SourceURL:      strings.TrimSpace(get("BACKUP_SOURCE_URL", "")),
		SigningKey:     strings.TrimSpace(get("STORAGE_SIGNING_KEY", "")),
		CacheDir:       get("BACKUP_CACHE_DIR", defaultCacheDir),
		DataDir:        get("SQL_DATA_DIR", defaultDataDir),

		SQL: SQLConfig{
			Host:     get("SQLSERVER_HOST", "localhost"),
			Port:     parseInt("SQLSERVER_PORT", 1433),
			User:     get("SQLSERVER_USER", "sa"),
			Password: get("SQLSERVER_PASSWORD", ""),
		},

		WarmupDelay:    parseDur("WARMUP_DELAY", defaultWarmupDelay),
		DropAttempts:   parseInt("DROP_RETRY_ATTEMPTS", defaultDropAttempts),
		DropDelay:      parseDur("DROP_RETRY_DELAY", defaultDropDelay),
		RestoreTimeout: parseDur("RESTORE_TIMEOUT", defaultRestoreTimeout),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate checks presence only; format checks (identifier character set,
// source URL shape) happen where the values are first used.
func (c *Config) validate() error {
	if c.DatabaseName == "" {
		return errors.New("DATABASE_NAME is required")
	}
	if c.BackupFileName == "" {
		return errors.New("BACKUP_FILE_NAME is required")
	}
	if c.SourceURL == "" {
		return errors.New("BACKUP_SOURCE_URL is required")
	}
	if c.SQL.Password == "" {
		return errors.New("SQLSERVER_PASSWORD is required")
	}
	return nil
}
