package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lunarcollector/internal/record"
)

type Mongo struct {
	URL        string `json:"url" yaml:"url"`
	Database   string `json:"database" yaml:"database"`
	Collection string `json:"collection" yaml:"collection"`
}

type LunarCrush struct {
	Endpoint          string `json:"endpoint" yaml:"endpoint"`
	APIKey            string `json:"api_key" yaml:"api_key"`
	Shape             string `json:"shape" yaml:"shape"`
	TokenExpiryHours  int    `json:"token_expiry_hours" yaml:"token_expiry_hours"`
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"`
	DayZone           string `json:"day_zone" yaml:"day_zone"`
}

type Browser struct {
	PageURL              string `json:"page_url" yaml:"page_url"`
	ResponseMatch        string `json:"response_match" yaml:"response_match"`
	UserAgent            string `json:"user_agent" yaml:"user_agent"`
	ExecPath             string `json:"exec_path" yaml:"exec_path"`
	Headless             bool   `json:"headless" yaml:"headless"`
	NavigationTimeoutSec int    `json:"navigation_timeout_sec" yaml:"navigation_timeout_sec"`
	ResponseWaitSec      int    `json:"response_wait_sec" yaml:"response_wait_sec"`
}

type Redis struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Key      string `json:"key" yaml:"key"`
}

type Metrics struct {
	Addr string `json:"addr" yaml:"addr"`
}

type Logging struct {
	Level string `json:"level" yaml:"level"`
	JSON  bool   `json:"json" yaml:"json"`
}

type Config struct {
	Mongo      Mongo      `json:"mongo" yaml:"mongo"`
	LunarCrush LunarCrush `json:"lunarcrush" yaml:"lunarcrush"`
	Browser    Browser    `json:"browser" yaml:"browser"`
	Redis      Redis      `json:"redis" yaml:"redis"`
	Metrics    Metrics    `json:"metrics" yaml:"metrics"`
	Logging    Logging    `json:"logging" yaml:"logging"`

	// DryRun keeps records in memory instead of writing them to MongoDB.
	DryRun bool `json:"dry_run" yaml:"dry_run"`
}

func Default() Config {
	return Config{
		Mongo: Mongo{
			URL:        "mongodb://localhost:27017/crypto_db",
			Collection: "lunarcrush_data",
		},
		LunarCrush: LunarCrush{
			Endpoint:          "https://lunarcrush.com/api3/storm/category/cryptocurrencies",
			Shape:             "verbose",
			TokenExpiryHours:  12,
			RequestTimeoutSec: 30,
			DayZone:           "UTC",
		},
		Browser: Browser{
			PageURL:              "https://lunarcrush.com/categories/cryptocurrencies",
			ResponseMatch:        "api3/storm",
			Headless:             true,
			NavigationTimeoutSec: 60,
			ResponseWaitSec:      10,
		},
		Redis: Redis{
			Addr: "localhost:6379",
			Key:  "lunarcollector:credential",
		},
		Logging: Logging{Level: "info"},
	}
}

// Load reads a JSON or YAML config from path. If path is empty or the file does
// not exist, it returns defaults. Environment variables override select fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, candidate := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MONGO_URL"); v != "" { cfg.Mongo.URL = v }
	if v := os.Getenv("MONGO_DATABASE"); v != "" { cfg.Mongo.Database = v }
	if v := os.Getenv("MONGO_COLLECTION"); v != "" { cfg.Mongo.Collection = v }

	if v := os.Getenv("LUNARCRUSH_ENDPOINT"); v != "" { cfg.LunarCrush.Endpoint = v }
	if v := os.Getenv("LUNARCRUSH_API_KEY"); v != "" { cfg.LunarCrush.APIKey = v }
	if v := os.Getenv("LUNARCRUSH_SHAPE"); v != "" { cfg.LunarCrush.Shape = v }
	envInt("TOKEN_EXPIRY_HOURS", &cfg.LunarCrush.TokenExpiryHours)
	envInt("REQUEST_TIMEOUT_SEC", &cfg.LunarCrush.RequestTimeoutSec)
	if v := os.Getenv("DAY_ZONE"); v != "" { cfg.LunarCrush.DayZone = v }

	if v := os.Getenv("BROWSER_PAGE_URL"); v != "" { cfg.Browser.PageURL = v }
	if v := os.Getenv("BROWSER_USER_AGENT"); v != "" { cfg.Browser.UserAgent = v }
	if v := os.Getenv("BROWSER_EXEC_PATH"); v != "" { cfg.Browser.ExecPath = v }
	envBool("BROWSER_HEADLESS", &cfg.Browser.Headless)
	envInt("BROWSER_NAVIGATION_TIMEOUT_SEC", &cfg.Browser.NavigationTimeoutSec)
	envInt("BROWSER_RESPONSE_WAIT_SEC", &cfg.Browser.ResponseWaitSec)

	envBool("REDIS_ENABLED", &cfg.Redis.Enabled)
	if v := os.Getenv("REDIS_ADDR"); v != "" { cfg.Redis.Addr = v }
	if v := os.Getenv("REDIS_PASSWORD"); v != "" { cfg.Redis.Password = v }
	if v := os.Getenv("REDIS_DB"); v != "" {
		var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.Redis.DB = x }
	}
	if v := os.Getenv("REDIS_KEY"); v != "" { cfg.Redis.Key = v }

	if v := os.Getenv("METRICS_ADDR"); v != "" { cfg.Metrics.Addr = v }
	if v := os.Getenv("LOG_LEVEL"); v != "" { cfg.Logging.Level = v }
	envBool("LOG_JSON", &cfg.Logging.JSON)
	envBool("DRY_RUN", &cfg.DryRun)
}

// envInt overrides dst with a positive integer from env.
func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { *dst = x }
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y": *dst = true
		case "0", "false", "no", "n": *dst = false
		}
	}
}

// Validate reports the first setting the collector cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Mongo.URL) == "" {
		return errors.New("mongo.url is required")
	}
	if strings.TrimSpace(c.Mongo.Collection) == "" {
		return errors.New("mongo.collection is required")
	}
	if strings.TrimSpace(c.LunarCrush.Endpoint) == "" {
		return errors.New("lunarcrush.endpoint is required")
	}
	if _, err := record.ParseShape(c.LunarCrush.Shape); err != nil {
		return fmt.Errorf("lunarcrush.shape: %w", err)
	}
	if c.LunarCrush.TokenExpiryHours <= 0 {
		return fmt.Errorf("lunarcrush.token_expiry_hours must be positive, got %d", c.LunarCrush.TokenExpiryHours)
	}
	if _, err := record.ParseZone(c.LunarCrush.DayZone); err != nil {
		return fmt.Errorf("lunarcrush.day_zone: %w", err)
	}
	if c.Redis.Enabled && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	return nil
}

func (l LunarCrush) TokenExpiry() time.Duration {
	return time.Duration(l.TokenExpiryHours) * time.Hour
}

func (l LunarCrush) RequestTimeout() time.Duration {
	return time.Duration(l.RequestTimeoutSec) * time.Second
}

func (b Browser) NavigationTimeout() time.Duration {
	return time.Duration(b.NavigationTimeoutSec) * time.Second
}

func (b Browser) ResponseWait() time.Duration {
	return time.Duration(b.ResponseWaitSec) * time.Second
}
