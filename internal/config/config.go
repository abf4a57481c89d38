package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config описывает параметры hellmfmt.
type Config struct {
	Agent struct {
		LogLevel string `yaml:"log_level"`
	} `yaml:"agent"`
	Formatter struct {
		Executable string `yaml:"executable"`
		TimeoutMS  int    `yaml:"timeout_ms"`
		GraceMS    int    `yaml:"grace_ms"`
		Jobs       int    `yaml:"jobs"`
	} `yaml:"formatter"`
	Security struct {
		AllowedRoots []string `yaml:"allowed_roots"`
		RateLimit    int      `yaml:"rate_limit"`
		RateWindowMS int      `yaml:"rate_window_ms"`
	} `yaml:"security"`
	SQLite struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"sqlite"`
	Watch struct {
		IntervalMS int      `yaml:"interval_ms"`
		Dirs       []string `yaml:"dirs"`
	} `yaml:"watch"`
	Web struct {
		ListenAddr       string `yaml:"listen_addr"`
		ReadTimeoutMS    int    `yaml:"read_timeout_ms"`
		WriteTimeoutMS   int    `yaml:"write_timeout_ms"`
		RequestTimeoutMS int    `yaml:"request_timeout_ms"`
		ShutdownTimeoutS int    `yaml:"shutdown_timeout_s"`
		MaxBodyBytes     int64  `yaml:"max_body_bytes"`
		// AllowSubjectHeader разрешает X-Subject-ID без токена.
		AllowSubjectHeader bool `yaml:"allow_subject_header"`
		Tokens             []struct {
			ID          string `yaml:"id"`
			TokenSHA256 string `yaml:"token_sha256"`
			Subject     string `yaml:"subject"`
			Enabled     bool   `yaml:"enabled"`
		} `yaml:"tokens"`
	} `yaml:"web"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	var cfg Config
	cfg.Agent.LogLevel = "info"
	cfg.Formatter.Executable = "hellm"
	cfg.Formatter.TimeoutMS = 10000
	cfg.Formatter.GraceMS = 2000
	cfg.Security.RateLimit = 20
	cfg.Security.RateWindowMS = 1000
	cfg.SQLite.Enabled = false
	cfg.SQLite.Path = defaultHistoryPath()
	cfg.Watch.IntervalMS = 1000
	cfg.Web.ListenAddr = "127.0.0.1:8787"
	cfg.Web.ReadTimeoutMS = 2000
	cfg.Web.WriteTimeoutMS = 15000
	cfg.Web.RequestTimeoutMS = 12000
	cfg.Web.ShutdownTimeoutS = 5
	cfg.Web.MaxBodyBytes = 1 << 16
	return cfg
}

func defaultHistoryPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "hellmfmt-history.db"
	}
	return filepath.Join(dir, "hellmfmt", "history.db")
}

// Load читает конфиг из файла YAML поверх значений по умолчанию.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- путь к конфигу задается пользователем.
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("config file is empty")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate проверяет значения, которые нельзя молча исправить.
func (c Config) Validate() error {
	if c.Formatter.TimeoutMS < 0 {
		return errors.New("formatter.timeout_ms must not be negative")
	}
	if c.Formatter.GraceMS < 0 {
		return errors.New("formatter.grace_ms must not be negative")
	}
	if c.Formatter.Jobs < 0 {
		return errors.New("formatter.jobs must not be negative")
	}
	if c.Watch.IntervalMS < 0 {
		return errors.New("watch.interval_ms must not be negative")
	}
	return nil
}

// Timeout возвращает бюджет одного запуска форматтера; 0 — без ограничения.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Formatter.TimeoutMS) * time.Millisecond
}

// WatchInterval возвращает период опроса каталогов.
func (c Config) WatchInterval() time.Duration {
	if c.Watch.IntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(c.Watch.IntervalMS) * time.Millisecond
}

// Grace возвращает паузу между мягкой и принудительной остановкой.
func (c Config) Grace() time.Duration {
	return time.Duration(c.Formatter.GraceMS) * time.Millisecond
}
