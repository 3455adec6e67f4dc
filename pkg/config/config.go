package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage driver selections.
const (
	StorageDriverAuto   = "auto"
	StorageDriverSQLite = "sqlite"
	StorageDriverFile   = "file"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	CORS     CORSConfig
	Log      LogConfig
	Storage  StorageConfig
	AutoSave AutoSaveConfig
	Roster   RosterConfig
	Reports  ReportsConfig
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig locates the on-device stores.
type StorageConfig struct {
	Driver        string
	DataDir       string
	SQLitePath    string
	FallbackDir   string
	// LegacyDir is the migration source. It defaults to FallbackDir, so data
	// saved during a fallback session reaches the database later.
	LegacyDir     string
	// HeartbeatPath is a sidecar file outside both stores.
	HeartbeatPath string
	QuotaBytes    int64
}

// AutoSaveConfig tunes the write debounce.
type AutoSaveConfig struct {
	Debounce time.Duration
}

// RosterConfig tunes student list behaviour.
type RosterConfig struct {
	UndoWindow time.Duration
}

// ReportsConfig configures asynchronous broadsheet generation.
type ReportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	dataDir := v.GetString("DATA_DIR")
	fallbackDir := orDefault(v.GetString("FALLBACK_DIR"), filepath.Join(dataDir, "local"))
	cfg.Storage = StorageConfig{
		Driver:        normalizeDriver(v.GetString("STORAGE_DRIVER")),
		DataDir:       dataDir,
		SQLitePath:    orDefault(v.GetString("SQLITE_PATH"), filepath.Join(dataDir, "repota-storage.db")),
		FallbackDir:   fallbackDir,
		LegacyDir:     orDefault(v.GetString("LEGACY_DIR"), fallbackDir),
		HeartbeatPath: orDefault(v.GetString("HEARTBEAT_PATH"), filepath.Join(dataDir, "heartbeat.json")),
		QuotaBytes:    v.GetInt64("STORAGE_QUOTA_BYTES"),
	}

	cfg.AutoSave = AutoSaveConfig{
		Debounce: parseDuration(v.GetString("AUTOSAVE_DEBOUNCE"), 500*time.Millisecond),
	}

	cfg.Roster = RosterConfig{
		UndoWindow: parseDuration(v.GetString("UNDO_WINDOW"), 10*time.Second),
	}

	cfg.Reports = ReportsConfig{
		Enabled:           v.GetBool("ENABLE_REPORTS"),
		StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), time.Hour),
		CleanupInterval:   parseDuration(v.GetString("REPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8787)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_DRIVER", StorageDriverAuto)
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("SQLITE_PATH", "")
	v.SetDefault("FALLBACK_DIR", "")
	v.SetDefault("LEGACY_DIR", "")
	v.SetDefault("HEARTBEAT_PATH", "")
	v.SetDefault("STORAGE_QUOTA_BYTES", 5*1024*1024)

	v.SetDefault("AUTOSAVE_DEBOUNCE", "500ms")
	v.SetDefault("UNDO_WINDOW", "10s")

	v.SetDefault("ENABLE_REPORTS", true)
	v.SetDefault("REPORTS_STORAGE_DIR", "./data/exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "1h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("REPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("REPORTS_WORKER_RETRIES", 2)
}

func normalizeDriver(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case StorageDriverSQLite:
		return StorageDriverSQLite
	case StorageDriverFile:
		return StorageDriverFile
	default:
		return StorageDriverAuto
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
