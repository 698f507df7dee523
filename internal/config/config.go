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

	"github.com/miradorstack/mirador-spiro/internal/spiro"
)

// Config captures the settings required to boot the spirometry service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Rules    RulesConfig    `yaml:"rules"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ServerConfig controls the gRPC and HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	HTTPAddress     string        `yaml:"httpAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	// RateLimit caps REST analyses per second; zero disables limiting.
	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`
	// MaxMessageBytes bounds gRPC request and response sizes.
	MaxMessageBytes int           `yaml:"maxMessageBytes"`
	KeepaliveTime   time.Duration `yaml:"keepaliveTime"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// AnalysisConfig sets defaults applied to every analysis request.
type AnalysisConfig struct {
	// TimeUnit is used when a request does not declare its own.
	TimeUnit   string `yaml:"timeUnit"`
	MaxSamples int    `yaml:"maxSamples"`
}

// RulesConfig controls rule-pack loading for the recommender.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls the Redis/Valkey-backed result cache.
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
	ResultTTL    time.Duration `yaml:"resultTTL"`

	BreakerFailures int           `yaml:"breakerFailures"`
	BreakerCooldown time.Duration `yaml:"breakerCooldown"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_SPIRO_CONFIG")
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if _, err := spiro.ParseTimeUnit(c.Analysis.TimeUnit); err != nil {
		return fmt.Errorf("analysis.timeUnit: %w", err)
	}
	if c.Analysis.MaxSamples <= 0 {
		return fmt.Errorf("analysis.maxSamples must be positive, got %d", c.Analysis.MaxSamples)
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return errors.New("server.rateLimit and server.rateBurst must not be negative")
	}
	if c.Server.MaxMessageBytes < 0 {
		return fmt.Errorf("server.maxMessageBytes must not be negative, got %d", c.Server.MaxMessageBytes)
	}
	if c.Cache.BreakerFailures < 0 {
		return fmt.Errorf("cache.breakerFailures must not be negative, got %d", c.Cache.BreakerFailures)
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return errors.New("cache.addr is required when cache is enabled")
	}
	return nil
}

// TimeUnit returns the parsed default time unit.
func (c *Config) TimeUnit() spiro.TimeUnit {
	unit, err := spiro.ParseTimeUnit(c.Analysis.TimeUnit)
	if err != nil {
		return spiro.Seconds
	}
	return unit
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			HTTPAddress:     ":8080",
			GracefulTimeout: 10 * time.Second,
			RateBurst:       20,
			MaxMessageBytes: 32 << 20,
			KeepaliveTime:   2 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Analysis: AnalysisConfig{
			TimeUnit:   string(spiro.Seconds),
			MaxSamples: 200000,
		},
		Rules: RulesConfig{Path: "configs/rules/default.yaml"},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			ResultTTL:    15 * time.Minute,

			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_SPIRO_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_SPIRO_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("MIRADOR_SPIRO_RATE_LIMIT"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit = rps
		}
	}
	if v := os.Getenv("MIRADOR_SPIRO_MAX_MESSAGE_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MaxMessageBytes = n
		}
	}
	if v := os.Getenv("MIRADOR_SPIRO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_SPIRO_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MIRADOR_SPIRO_TIME_UNIT"); v != "" {
		cfg.Analysis.TimeUnit = v
	}
	if v := os.Getenv("MIRADOR_SPIRO_MAX_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.MaxSamples = n
		}
	}
	if v := os.Getenv("MIRADOR_SPIRO_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("MIRADOR_SPIRO_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = envBool(v)
	}
	if v := os.Getenv("MIRADOR_SPIRO_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("MIRADOR_SPIRO_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("MIRADOR_SPIRO_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("MIRADOR_SPIRO_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("MIRADOR_SPIRO_CACHE_TLS"); v != "" {
		cfg.Cache.TLS = envBool(v)
	}
	if v := os.Getenv("MIRADOR_SPIRO_CACHE_MAX_RETRIES"); v != "" {
		if retry, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxRetries = retry
		}
	}
	envDuration("MIRADOR_SPIRO_CACHE_DIAL_TIMEOUT", &cfg.Cache.DialTimeout)
	envDuration("MIRADOR_SPIRO_CACHE_READ_TIMEOUT", &cfg.Cache.ReadTimeout)
	envDuration("MIRADOR_SPIRO_CACHE_WRITE_TIMEOUT", &cfg.Cache.WriteTimeout)
	envDuration("MIRADOR_SPIRO_CACHE_RESULT_TTL", &cfg.Cache.ResultTTL)
	envDuration("MIRADOR_SPIRO_CACHE_BREAKER_COOLDOWN", &cfg.Cache.BreakerCooldown)
}

func envBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func envDuration(key string, target *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}
