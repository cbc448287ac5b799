package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage modes. Legacy writes straight into Backup.Dir; scoped requires a
// user-granted folder persisted in the preference store.
const (
	StorageLegacy = "legacy"
	StorageScoped = "scoped"
)

// Worker modes.
const (
	WorkerInProcess = "inprocess"
	WorkerExternal  = "external"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Storage  StorageConfig
	Backup   BackupConfig
	Prefs    PrefsConfig
	Log      LogConfig
	Worker   WorkerConfig
	Metrics  MetricsConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// StorageConfig selects the storage access model.
type StorageConfig struct {
	Mode string
}

// BackupConfig holds backup location and naming.
type BackupConfig struct {
	Dir        string
	NameLayout string `mapstructure:"name_layout"`
}

// PrefsConfig locates the preference store file.
type PrefsConfig struct {
	Path string
}

// LogConfig holds zap settings.
type LogConfig struct {
	Level  string
	Format string
	Path   string
}

// WorkerConfig controls the backup worker.
type WorkerConfig struct {
	Mode         string
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// MetricsConfig holds the prometheus listener address for the worker process.
type MetricsConfig struct {
	Addr string
}

// Load reads configuration from file and env. Env var overrides use prefix JASKNOTES_.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("JASKNOTES_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "jasknotes"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("JASKNOTES")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	home := os.Getenv("HOME")
	share := filepath.Join(home, ".local", "share", "jasknotes")
	v.SetDefault("database.path", filepath.Join(share, "jasknotes.db"))
	v.SetDefault("storage.mode", StorageScoped)
	v.SetDefault("backup.dir", filepath.Join(share, "backups"))
	v.SetDefault("backup.name_layout", "2006.01.02-1504")
	v.SetDefault("prefs.path", filepath.Join(home, ".config", "jasknotes", "prefs.toml"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.path", filepath.Join(home, ".local", "state", "jasknotes", "jasknotes.log"))
	v.SetDefault("worker.mode", WorkerInProcess)
	v.SetDefault("worker.poll_interval", 2*time.Second)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("metrics.addr", "")
}

// Validate rejects modes the rest of the app does not understand.
func (c Config) Validate() error {
	switch c.Storage.Mode {
	case StorageLegacy, StorageScoped:
	default:
		return fmt.Errorf("config: unknown storage.mode %q", c.Storage.Mode)
	}
	switch c.Worker.Mode {
	case WorkerInProcess, WorkerExternal:
	default:
		return fmt.Errorf("config: unknown worker.mode %q", c.Worker.Mode)
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("config: worker.max_attempts must be >= 1")
	}
	return nil
}

// Save writes the provided config to disk, creating the config directory if needed.
func Save(cfg Config) error {
	path := os.Getenv("JASKNOTES_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "jasknotes", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("storage.mode", cfg.Storage.Mode)
	v.Set("backup.dir", cfg.Backup.Dir)
	v.Set("backup.name_layout", cfg.Backup.NameLayout)
	v.Set("prefs.path", cfg.Prefs.Path)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)
	v.Set("log.path", cfg.Log.Path)
	v.Set("worker.mode", cfg.Worker.Mode)
	v.Set("worker.poll_interval", cfg.Worker.PollInterval.String())
	v.Set("worker.max_attempts", cfg.Worker.MaxAttempts)
	v.Set("metrics.addr", cfg.Metrics.Addr)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
