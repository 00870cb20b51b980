package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "EHRSIM"

type Config struct {
	SocketPath string `mapstructure:"socket_path"`
	DBPath     string `mapstructure:"db_path"`
	// TickInterval is the wall-clock period between vitals updates.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// EvictAfter is how long an ended session stays readable in memory.
	EvictAfter    time.Duration `mapstructure:"evict_after"`
	EvictInterval time.Duration `mapstructure:"evict_interval"`
	MaxTicks      int64         `mapstructure:"max_ticks"`
	VitalsNoise   float64       `mapstructure:"vitals_noise"`
	Seed          uint64        `mapstructure:"seed"`
	SeedExamples  bool          `mapstructure:"seed_examples"`
	Log           LogConfig     `mapstructure:"log"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func DefaultConfig() Config {
	return Config{
		SocketPath:    defaultSocketPath(),
		DBPath:        defaultDBPath(),
		TickInterval:  time.Second,
		EvictAfter:    5 * time.Minute,
		EvictInterval: 30 * time.Second,
		MaxTicks:      0,
		VitalsNoise:   1.0,
		Seed:          0,
		SeedExamples:  true,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("socket_path", d.SocketPath)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("tick_interval", d.TickInterval)
	v.SetDefault("evict_after", d.EvictAfter)
	v.SetDefault("evict_interval", d.EvictInterval)
	v.SetDefault("max_ticks", d.MaxTicks)
	v.SetDefault("vitals_noise", d.VitalsNoise)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("seed_examples", d.SeedExamples)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)
}

// Load layers defaults, an optional config file and EHRSIM_* environment
// variables, in that order. With an empty path the file is looked up as
// ehrsim.{toml,yaml,json} in ConfigDir and may be absent; an explicit path
// must exist.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ehrsim")
		v.AddConfigPath(ConfigDir())
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.SocketPath) == "" {
		errs = append(errs, errors.New("socket_path is required"))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval))
	}
	if c.EvictAfter <= 0 {
		errs = append(errs, fmt.Errorf("evict_after must be positive, got %s", c.EvictAfter))
	}
	if c.EvictInterval <= 0 {
		errs = append(errs, fmt.Errorf("evict_interval must be positive, got %s", c.EvictInterval))
	}
	if c.MaxTicks < 0 {
		errs = append(errs, fmt.Errorf("max_ticks must not be negative, got %d", c.MaxTicks))
	}
	if c.VitalsNoise < 0 {
		errs = append(errs, fmt.Errorf("vitals_noise must not be negative, got %g", c.VitalsNoise))
	}
	return errors.Join(errs...)
}

func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "ehrsim")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "ehrsim")
}

func defaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "ehrsim", "ehrsimd.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ehrsimd.sock"
	}
	return filepath.Join(home, ".local", "state", "ehrsim", "ehrsimd.sock")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ehrsim.db"
	}
	return filepath.Join(home, ".local", "state", "ehrsim", "ehrsim.db")
}
