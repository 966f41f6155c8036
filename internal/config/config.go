package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gradpush/extrapoints/internal/storage"
)

// ConfigFileEnv names the optional YAML file applied before the environment
const ConfigFileEnv = "EXTRAPOINTS_CONFIG"

// Config holds all configuration for the CLI and the mock backend
type Config struct {
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Watch   WatchConfig   `yaml:"watch"`
	Log     LogConfig     `yaml:"log"`
}

// APIConfig holds portal client configuration
type APIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Origin      string        `yaml:"origin"`
	Timeout     time.Duration `yaml:"timeout"`
	AuthMode    string        `yaml:"auth_mode"`
	RankingPath string        `yaml:"ranking_path"`
}

// StorageConfig selects where client state is persisted
type StorageConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	RedisAddress  string `yaml:"redis_address"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
	DatabaseDSN   string `yaml:"database_dsn"`
	StateTable    string `yaml:"state_table"`
}

// ServerConfig holds mock backend configuration
type ServerConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	StorageDriver string        `yaml:"storage_driver"`
	StoragePath   string        `yaml:"storage_path"`
	Users         []SeedUser    `yaml:"users"`
}

// SeedUser is an account created when the mock backend starts
type SeedUser struct {
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Name      string `yaml:"name"`
	Role      string `yaml:"role"`
	StudentID string `yaml:"student_id"`
}

// WatchConfig holds pending-queue watcher configuration
type WatchConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:  "/api",
			Origin:   "http://localhost:5001",
			Timeout:  10 * time.Second,
			AuthMode: "both",
		},
		Storage: StorageConfig{
			Driver:       storage.DriverFile,
			Path:         defaultStatePath(),
			RedisAddress: "localhost:6379",
			RedisPrefix:  "extrapoints:",
			StateTable:   storage.DefaultTable,
		},
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          5001,
			JWTSecret:     "change-me",
			TokenTTL:      24 * time.Hour,
			StorageDriver: storage.DriverMemory,
			Users: []SeedUser{
				{Username: "admin", Password: "admin123", Name: "管理员", Role: "admin"},
				{Username: "teacher", Password: "teacher123", Name: "审核老师", Role: "teacher"},
				{Username: "student", Password: "student123", Name: "张三", Role: "student", StudentID: "2021001"},
			},
		},
		Watch: WatchConfig{
			Interval: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional .env file, an
// optional YAML file named by EXTRAPOINTS_CONFIG and the environment, in
// increasing precedence
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.API.BaseURL = getEnv("API_BASE_URL", c.API.BaseURL)
	c.API.Origin = getEnv("API_ORIGIN", c.API.Origin)
	c.API.Timeout = getEnvAsDuration("API_TIMEOUT", c.API.Timeout)
	c.API.AuthMode = getEnv("AUTH_MODE", c.API.AuthMode)
	c.API.RankingPath = getEnv("API_RANKING_PATH", c.API.RankingPath)

	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Path = getEnv("STORAGE_PATH", c.Storage.Path)
	c.Storage.RedisAddress = getEnv("REDIS_ADDRESS", c.Storage.RedisAddress)
	c.Storage.RedisPassword = getEnv("REDIS_PASSWORD", c.Storage.RedisPassword)
	c.Storage.RedisDB = getEnvAsInt("REDIS_DB", c.Storage.RedisDB)
	c.Storage.RedisPrefix = getEnv("REDIS_PREFIX", c.Storage.RedisPrefix)
	c.Storage.DatabaseDSN = getEnv("DATABASE_DSN", c.Storage.DatabaseDSN)
	c.Storage.StateTable = getEnv("STATE_TABLE", c.Storage.StateTable)

	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Server.JWTSecret = getEnv("JWT_SECRET", c.Server.JWTSecret)
	c.Server.TokenTTL = getEnvAsDuration("TOKEN_TTL", c.Server.TokenTTL)
	c.Server.StorageDriver = getEnv("MOCK_STORAGE_DRIVER", c.Server.StorageDriver)
	c.Server.StoragePath = getEnv("MOCK_STORAGE_PATH", c.Server.StoragePath)
	if value, ok := os.LookupEnv("SEED_USERS"); ok {
		c.Server.Users = parseSeedUsers(value)
	}

	c.Watch.Interval = getEnvAsDuration("WATCH_INTERVAL", c.Watch.Interval)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base URL is required")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") &&
		!strings.HasPrefix(c.API.Origin, "http://") && !strings.HasPrefix(c.API.Origin, "https://") {
		return fmt.Errorf("api origin must be an http(s) URL when the base URL is relative: %q", c.API.Origin)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("invalid api timeout: %s", c.API.Timeout)
	}
	switch c.API.AuthMode {
	case "token", "session", "both":
	default:
		return fmt.Errorf("invalid auth mode: %q", c.API.AuthMode)
	}

	if err := validateStorage(c.Storage.Driver, c.Storage.Path, c.Storage); err != nil {
		return err
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if c.Server.TokenTTL <= 0 {
		return fmt.Errorf("invalid token ttl: %s", c.Server.TokenTTL)
	}
	if err := validateStorage(c.Server.StorageDriver, c.Server.StoragePath, c.Storage); err != nil {
		return fmt.Errorf("mock backend: %w", err)
	}
	for i, u := range c.Server.Users {
		if u.Username == "" || u.Password == "" {
			return fmt.Errorf("seed user %d: username and password are required", i+1)
		}
		switch u.Role {
		case "student", "teacher", "admin":
		default:
			return fmt.Errorf("seed user %s: invalid role %q", u.Username, u.Role)
		}
	}

	if c.Watch.Interval <= 0 {
		return fmt.Errorf("invalid watch interval: %s", c.Watch.Interval)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

func validateStorage(driver, path string, s StorageConfig) error {
	switch driver {
	case storage.DriverMemory:
	case storage.DriverFile:
		if path == "" {
			return fmt.Errorf("storage path is required for the file driver")
		}
	case storage.DriverRedis:
		if s.RedisAddress == "" {
			return fmt.Errorf("redis address is required for the redis driver")
		}
	case storage.DriverPostgres:
		if s.DatabaseDSN == "" {
			return fmt.Errorf("database DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid storage driver: %q", driver)
	}
	return nil
}

// StorageOptions returns the client state store settings
func (c *Config) StorageOptions() storage.Config {
	return c.Storage.options(c.Storage.Driver, c.Storage.Path)
}

// MockStorageOptions returns the mock backend store settings. Connection
// settings are shared with the client store.
func (c *Config) MockStorageOptions() storage.Config {
	return c.Storage.options(c.Server.StorageDriver, c.Server.StoragePath)
}

func (s StorageConfig) options(driver, path string) storage.Config {
	return storage.Config{
		Driver: driver,
		Path:   path,
		Redis: storage.RedisConfig{
			Address:  s.RedisAddress,
			Password: s.RedisPassword,
			DB:       s.RedisDB,
			Prefix:   s.RedisPrefix,
		},
		Postgres: storage.PostgresConfig{
			DSN:   s.DatabaseDSN,
			Table: s.StateTable,
		},
	}
}

// Address returns the mock backend listen address
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SlogLevel returns the configured log level
func (l LogConfig) SlogLevel() slog.Level {
	level, _ := parseLevel(l.Level)
	return level
}

func parseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %q", value)
	}
}

// parseSeedUsers reads "username:password:role[:name[:studentId]]" entries
// separated by commas
func parseSeedUsers(value string) []SeedUser {
	var users []SeedUser
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		for len(parts) < 5 {
			parts = append(parts, "")
		}
		users = append(users, SeedUser{
			Username:  parts[0],
			Password:  parts[1],
			Role:      parts[2],
			Name:      parts[3],
			StudentID: parts[4],
		})
	}
	return users
}

func defaultStatePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "extrapoints", "state.json")
	}
	return ".extrapoints.json"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
