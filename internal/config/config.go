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

// Config captures the settings required to boot the tuner engine.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Engine  EngineConfig  `yaml:"engine"`
	Tuning  TuningConfig  `yaml:"tuning"`
	Cache   CacheConfig   `yaml:"cache"`
	Feed    FeedConfig    `yaml:"feed"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the ops gRPC listener and the metrics endpoint.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// EngineConfig controls buffering, spike detection, and the analysis cadence.
type EngineConfig struct {
	BufferCap             int           `yaml:"bufferCap"`
	SpikeBufferCap        int           `yaml:"spikeBufferCap"`
	SpikeImpactThreshold  float64       `yaml:"spikeImpactThreshold"`
	DensityAlertThreshold float64       `yaml:"densityAlertThreshold"`
	AnalysisWindow        time.Duration `yaml:"analysisWindow"`
	HistoryCap            int           `yaml:"historyCap"`
	AlertCap              int           `yaml:"alertCap"`
	InsightCap            int           `yaml:"insightCap"`
	BaseCost              float64       `yaml:"baseCost"`
}

// TuningConfig controls the recommendation layer.
type TuningConfig struct {
	AutoGenerate bool `yaml:"autoGenerate"`
}

// CacheConfig controls the optional Valkey-backed cache used to persist
// parameter values and the feed cursor across restarts.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	ParameterTTL time.Duration `yaml:"parameterTTL"`
}

// FeedConfig controls the optional upstream telemetry feed poller. An empty
// base URL disables polling.
type FeedConfig struct {
	BaseURL      string        `yaml:"baseURL"`
	EventsPath   string        `yaml:"eventsPath"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"pollInterval"`
	BatchLimit   int           `yaml:"batchLimit"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("PULSE_TUNER_CONFIG")
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
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Engine: EngineConfig{
			BufferCap:             10000,
			SpikeBufferCap:        1000,
			SpikeImpactThreshold:  0.9,
			DensityAlertThreshold: 5.0,
			AnalysisWindow:        60 * time.Second,
			HistoryCap:            100,
			AlertCap:              1000,
			InsightCap:            500,
			BaseCost:              1.0,
		},
		Tuning: TuningConfig{AutoGenerate: true},
		Cache: CacheConfig{
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
		Feed: FeedConfig{
			EventsPath:   "/api/v1/telemetry/events",
			Timeout:      5 * time.Second,
			PollInterval: 5 * time.Second,
			BatchLimit:   500,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PULSE_TUNER_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("PULSE_TUNER_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("PULSE_TUNER_BUFFER_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.BufferCap = n
		}
	}
	if v := os.Getenv("PULSE_TUNER_SPIKE_BUFFER_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.SpikeBufferCap = n
		}
	}
	if v := os.Getenv("PULSE_TUNER_SPIKE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.SpikeImpactThreshold = f
		}
	}
	if v := os.Getenv("PULSE_TUNER_DENSITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.DensityAlertThreshold = f
		}
	}
	if v := os.Getenv("PULSE_TUNER_ANALYSIS_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.AnalysisWindow = d
		}
	}
	if v := os.Getenv("PULSE_TUNER_BASE_COST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.BaseCost = f
		}
	}
	if v := os.Getenv("PULSE_TUNER_AUTO_GENERATE"); v != "" {
		cfg.Tuning.AutoGenerate = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("PULSE_TUNER_CACHE_ADDR"); v != "" {
		cfg.Cache.Enabled = true
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("PULSE_TUNER_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("PULSE_TUNER_FEED_URL"); v != "" {
		cfg.Feed.BaseURL = v
	}
	if v := os.Getenv("PULSE_TUNER_FEED_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Feed.PollInterval = d
		}
	}
	if v := os.Getenv("PULSE_TUNER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PULSE_TUNER_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
