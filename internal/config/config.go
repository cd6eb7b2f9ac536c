// Package config загружает конфигурацию flowstack.
//
// Источники в порядке приоритета:
//  1. переменные окружения (DB_URL, RABBITMQ_URL, HTTP_PORT, STORAGE, ...)
//  2. YAML-файл (--config)
//  3. значения по умолчанию (Defaults)
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Flowstack/internal/channel"
	"github.com/shaiso/Flowstack/internal/repo"
)

// Драйверы хранилища.
const (
	StoragePostgres = repo.DriverPostgres
	StorageBadger   = repo.DriverBadger
	StorageMemory   = repo.DriverMemory
)

// ErrInvalidConfig — конфигурация не прошла проверку.
var ErrInvalidConfig = errors.New("invalid config")

// Config — конфигурация процесса.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Channel  ChannelConfig  `yaml:"channel"`
	HTTP     HTTPConfig     `yaml:"http"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Log      LogConfig      `yaml:"log"`
}

// StorageConfig — хранилище flows и истории выполнений.
type StorageConfig struct {
	// Driver — postgres, badger или memory.
	Driver string `yaml:"driver"`

	// DSN — строка подключения к PostgreSQL.
	DSN string `yaml:"dsn"`

	// BadgerDir — каталог badger. Пустой — in-memory режим badger.
	BadgerDir string `yaml:"badger_dir"`
}

// ChannelConfig — очередь событий выполнения.
type ChannelConfig struct {
	Capacity    int           `yaml:"capacity"`
	SendRetries int           `yaml:"send_retries"`
	SendWait    time.Duration `yaml:"send_wait"`
}

// HTTPConfig — HTTP API.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// RabbitMQConfig — публикация событий. Пустой URL отключает публикацию.
type RabbitMQConfig struct {
	URL string `yaml:"url"`
}

// LogConfig — логирование.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults возвращает конфигурацию по умолчанию.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{
			Driver: StoragePostgres,
			DSN:    repo.DefaultDSN,
		},
		Channel: ChannelConfig{
			Capacity:    channel.DefaultCapacity,
			SendRetries: channel.DefaultSendRetries,
			SendWait:    channel.DefaultSendWait,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "INFO", Format: "json"},
	}
}

// Load читает файл (если path не пустой), дополняет его значениями
// по умолчанию и применяет переменные окружения.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := mergo.Merge(&cfg, Defaults()); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv применяет переменные окружения поверх файла.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("STORAGE"); ok && v != "" {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := lookup("DB_URL"); ok && v != "" {
		cfg.Storage.DSN = v
	}
	if v, ok := lookup("BADGER_DIR"); ok {
		cfg.Storage.BadgerDir = v
	}
	if v, ok := lookup("RABBITMQ_URL"); ok {
		cfg.RabbitMQ.URL = v
	}
	if v, ok := lookup("HTTP_PORT"); ok && v != "" {
		cfg.HTTP.Addr = ":" + v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		cfg.Log.Format = v
	}
	if v, ok := lookup("CHANNEL_CAPACITY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: CHANNEL_CAPACITY: %v", ErrInvalidConfig, err)
		}
		cfg.Channel.Capacity = n
	}
	return nil
}

// StoreOptions возвращает параметры открытия хранилища.
func (c *Config) StoreOptions() repo.Options {
	return repo.Options{
		Driver:    c.Storage.Driver,
		DSN:       c.Storage.DSN,
		BadgerDir: c.Storage.BadgerDir,
		Migrate:   true,
	}
}

// Validate проверяет конфигурацию.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StoragePostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("%w: storage.dsn is required for postgres", ErrInvalidConfig)
		}
	case StorageBadger, StorageMemory:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}

	if c.Channel.Capacity <= 0 {
		return fmt.Errorf("%w: channel.capacity must be positive", ErrInvalidConfig)
	}
	if c.Channel.SendRetries <= 0 {
		return fmt.Errorf("%w: channel.send_retries must be positive", ErrInvalidConfig)
	}
	if c.Channel.SendWait <= 0 {
		return fmt.Errorf("%w: channel.send_wait must be positive", ErrInvalidConfig)
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}
