package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Admission AdmissionConfig `yaml:"admission"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type StorageConfig struct {
	FilesPath   string `yaml:"files_path"`
	StagingPath string `yaml:"staging_path"`
	QuotaBytes  int64  `yaml:"quota_bytes"`
}

type AdmissionConfig struct {
	ConcurrencyCap int `yaml:"concurrency_cap"`
}

type DeliveryConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Secret   string        `yaml:"secret"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/bundler.db",
		},
		Storage: StorageConfig{
			FilesPath:   "./data/files",
			StagingPath: "./data/staging",
			QuotaBytes:  4 << 30,
		},
		Admission: AdmissionConfig{
			ConcurrencyCap: 5,
		},
		Delivery: DeliveryConfig{
			Timeout: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BUNDLER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("BUNDLER_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("BUNDLER_FILES_PATH"); v != "" {
		cfg.Storage.FilesPath = v
	}

	if v := os.Getenv("BUNDLER_STAGING_PATH"); v != "" {
		cfg.Storage.StagingPath = v
	}

	if v := os.Getenv("BUNDLER_QUOTA_BYTES"); v != "" {
		if quota, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Storage.QuotaBytes = quota
		}
	}

	if v := os.Getenv("BUNDLER_CONCURRENCY_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Admission.ConcurrencyCap = n
		}
	}

	if v := os.Getenv("BUNDLER_DELIVERY_ENDPOINT"); v != "" {
		cfg.Delivery.Endpoint = v
	}

	if v := os.Getenv("BUNDLER_DELIVERY_SECRET"); v != "" {
		cfg.Delivery.Secret = v
	}

	if v := os.Getenv("BUNDLER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Storage.FilesPath == "" {
		return fmt.Errorf("files path is required")
	}

	if c.Storage.StagingPath == "" {
		return fmt.Errorf("staging path is required")
	}

	if c.Storage.QuotaBytes < 1 {
		return fmt.Errorf("quota bytes must be positive")
	}

	if c.Admission.ConcurrencyCap < 1 {
		return fmt.Errorf("concurrency cap must be at least 1")
	}

	if c.Delivery.Endpoint == "" {
		return fmt.Errorf("delivery endpoint is required")
	}

	if c.Delivery.Timeout < 0 {
		return fmt.Errorf("delivery timeout must be non-negative")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}
