package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Timer         TimerConfig         `toml:"timer"`
	Web           WebConfig           `toml:"web"`
	Redis         RedisConfig         `toml:"redis"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// GeneralConfig holds storage and identity settings
type GeneralConfig struct {
	DatabasePath string `toml:"database_path"`
	UserID       string `toml:"user_id"`
}

// TimerConfig holds tick settings
type TimerConfig struct {
	TickIntervalMs int `toml:"tick_interval_ms"`
}

// WebConfig holds HTTP API settings
type WebConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// RedisConfig enables the single-writer lease when Addr is set
type RedisConfig struct {
	Addr            string `toml:"addr"`
	LeaseTTLSeconds int    `toml:"lease_ttl_seconds"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop bool `toml:"desktop"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath: filepath.Join(home, ".issuetimer", "issuetimer.db"),
			UserID:       os.Getenv("USER"),
		},
		Timer: TimerConfig{
			TickIntervalMs: 1000,
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 7420,
		},
		Redis: RedisConfig{
			LeaseTTLSeconds: 30,
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	return cfg, nil
}

// ApplyEnv loads a .env file from the working directory if present and
// lets ISSUETIMER_* variables override file settings.
func (c *Config) ApplyEnv() error {
	_ = godotenv.Load()

	if v := os.Getenv("ISSUETIMER_USER_ID"); v != "" {
		c.General.UserID = v
	}
	if v := os.Getenv("ISSUETIMER_DATABASE"); v != "" {
		c.General.DatabasePath = ExpandPath(v)
	}
	if v := os.Getenv("ISSUETIMER_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("ISSUETIMER_WEB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ISSUETIMER_WEB_PORT: %w", err)
		}
		c.Web.Port = port
	}
	return nil
}

// Validate reports settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.General.UserID == "" {
		errs = append(errs, errors.New("general.user_id is required"))
	}
	if c.General.DatabasePath == "" {
		errs = append(errs, errors.New("general.database_path is required"))
	}
	if c.Timer.TickIntervalMs <= 0 || c.Timer.TickIntervalMs > 1000 {
		errs = append(errs, fmt.Errorf("timer.tick_interval_ms must be in 1..1000, got %d", c.Timer.TickIntervalMs))
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		errs = append(errs, fmt.Errorf("web.port out of range: %d", c.Web.Port))
	}
	if c.Redis.Addr != "" && c.Redis.LeaseTTLSeconds <= 0 {
		errs = append(errs, errors.New("redis.lease_ttl_seconds must be positive"))
	}
	return errors.Join(errs...)
}

// TickInterval is the scheduler interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Timer.TickIntervalMs) * time.Millisecond
}

// LeaseTTL is the redis lease lifetime.
func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.Redis.LeaseTTLSeconds) * time.Second
}

// Addr is the listen address of the HTTP API.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Web.Host, c.Web.Port)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "issuetimer", "config.toml")
}
