package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the retro-engine service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Clients   ClientsConfig   `yaml:"clients"`
	Narrative NarrativeConfig `yaml:"narrative"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// DatabaseConfig configures the SQLite snapshot and report store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ClientsConfig groups upstream integrations.
type ClientsConfig struct {
	Metrics   MetricsClientConfig   `yaml:"metrics"`
	Dashboard DashboardClientConfig `yaml:"dashboard"`
}

// MetricsClientConfig configures access to the sprint metrics provider.
type MetricsClientConfig struct {
	BaseURL      string        `yaml:"baseURL"`
	APIKey       string        `yaml:"apiKey"`
	Timeout      time.Duration `yaml:"timeout"`
	MockFallback bool          `yaml:"mockFallback"`
}

// DashboardClientConfig configures the delivery dashboard integration.
type DashboardClientConfig struct {
	BaseURL      string        `yaml:"baseURL"`
	ClientID     string        `yaml:"clientID"`
	ClientSecret string        `yaml:"clientSecret"`
	Timeout      time.Duration `yaml:"timeout"`
	CacheTTL     time.Duration `yaml:"cacheTTL"`
}

// NarrativeConfig configures the LLM-backed narrative generator. When
// Provider is "fallback" (or the API key is empty) a deterministic local
// generator is used instead.
type NarrativeConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"baseURL"`
	APIKey      string        `yaml:"apiKey"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"maxTokens"`
	Temperature float64       `yaml:"temperature"`
}

// AnalysisConfig holds the tunable thresholds of the analysis core.
type AnalysisConfig struct {
	TrendThreshold       float64 `yaml:"trendThreshold"`
	CorrelationThreshold float64 `yaml:"correlationThreshold"`
	ConfidenceHigh       float64 `yaml:"confidenceHigh"`
	ConfidenceMedium     float64 `yaml:"confidenceMedium"`
	DefaultSprintCount   int     `yaml:"defaultSprintCount"`
}

// TasksConfig controls the background task manager.
type TasksConfig struct {
	Workers     int           `yaml:"workers"`
	QueueSize   int           `yaml:"queueSize"`
	RetainFor   time.Duration `yaml:"retainFor"`
	TaskTimeout time.Duration `yaml:"taskTimeout"`
}

// CacheConfig controls caching of upstream lookups. Provider is one of
// "none", "memory" or "valkey".
type CacheConfig struct {
	Provider     string        `yaml:"provider"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	TLS          bool          `yaml:"tls"`
	ReportTTL    time.Duration `yaml:"reportTTL"`
	SnapshotTTL  time.Duration `yaml:"snapshotTTL"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("RETRO_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			GracefulTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Path: "retro.db"},
		Clients: ClientsConfig{
			Metrics: MetricsClientConfig{
				Timeout:      10 * time.Second,
				MockFallback: true,
			},
			Dashboard: DashboardClientConfig{
				Timeout:  10 * time.Second,
				CacheTTL: 5 * time.Minute,
			},
		},
		Narrative: NarrativeConfig{
			Provider:    "fallback",
			Model:       "gpt-4o-mini",
			Timeout:     30 * time.Second,
			MaxTokens:   600,
			Temperature: 0.7,
		},
		Analysis: AnalysisConfig{
			TrendThreshold:       0.20,
			CorrelationThreshold: 0.6,
			ConfidenceHigh:       0.8,
			ConfidenceMedium:     0.5,
			DefaultSprintCount:   5,
		},
		Tasks: TasksConfig{
			Workers:     2,
			QueueSize:   32,
			RetainFor:   time.Hour,
			TaskTimeout: 2 * time.Minute,
		},
		Cache: CacheConfig{
			Provider:     "none",
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			ReportTTL:    10 * time.Minute,
			SnapshotTTL:  5 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func (c *Config) validate() error {
	switch c.Cache.Provider {
	case "", "none", "memory", "valkey":
	default:
		return fmt.Errorf("unknown cache provider %q", c.Cache.Provider)
	}
	if c.Cache.Provider == "valkey" && c.Cache.Addr == "" {
		return errors.New("cache provider valkey requires cache.addr")
	}
	if c.Analysis.DefaultSprintCount < 2 {
		return fmt.Errorf("analysis.defaultSprintCount must be at least 2, got %d", c.Analysis.DefaultSprintCount)
	}
	if c.Tasks.Workers < 1 {
		return fmt.Errorf("tasks.workers must be at least 1, got %d", c.Tasks.Workers)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RETRO_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("RETRO_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("RETRO_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("RETRO_METRICS_BASE_URL"); v != "" {
		cfg.Clients.Metrics.BaseURL = v
	}
	if v := os.Getenv("RETRO_METRICS_API_KEY"); v != "" {
		cfg.Clients.Metrics.APIKey = v
	}
	if v := os.Getenv("RETRO_METRICS_MOCK_FALLBACK"); v != "" {
		cfg.Clients.Metrics.MockFallback = isTrue(v)
	}
	if v := os.Getenv("RETRO_DASHBOARD_BASE_URL"); v != "" {
		cfg.Clients.Dashboard.BaseURL = v
	}
	if v := os.Getenv("RETRO_DASHBOARD_CLIENT_ID"); v != "" {
		cfg.Clients.Dashboard.ClientID = v
	}
	if v := os.Getenv("RETRO_DASHBOARD_CLIENT_SECRET"); v != "" {
		cfg.Clients.Dashboard.ClientSecret = v
	}
	if v := os.Getenv("RETRO_NARRATIVE_PROVIDER"); v != "" {
		cfg.Narrative.Provider = v
	}
	if v := os.Getenv("RETRO_NARRATIVE_BASE_URL"); v != "" {
		cfg.Narrative.BaseURL = v
	}
	if v := os.Getenv("RETRO_NARRATIVE_API_KEY"); v != "" {
		cfg.Narrative.APIKey = v
	}
	if v := os.Getenv("RETRO_NARRATIVE_MODEL"); v != "" {
		cfg.Narrative.Model = v
	}
	if v := os.Getenv("RETRO_TASKS_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tasks.Workers = n
		}
	}
	if v := os.Getenv("RETRO_CACHE_PROVIDER"); v != "" {
		cfg.Cache.Provider = v
	}
	if v := os.Getenv("RETRO_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("RETRO_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("RETRO_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("RETRO_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("RETRO_CACHE_TLS"); isTrue(v) {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("RETRO_CACHE_REPORT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ReportTTL = d
		}
	}
	if v := os.Getenv("RETRO_CACHE_SNAPSHOT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SnapshotTTL = d
		}
	}
	if v := os.Getenv("RETRO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RETRO_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
