// Package config loads canopy settings from defaults, an optional YAML file
// and CANOPY_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. Nested keys use "__",
// e.g. CANOPY_STORE__REDIS__ADDR sets store.redis.addr.
const EnvPrefix = "CANOPY_"

// DefaultFile is read when Load is called with an empty path.
const DefaultFile = "canopy.yaml"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Store      StoreConfig      `koanf:"store"`
	Catalog    CatalogConfig    `koanf:"catalog"`
	Evaluators EvaluatorsConfig `koanf:"evaluators"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Log        LogConfig        `koanf:"log"`
}

type ServerConfig struct {
	Port        int `koanf:"port"`
	MetricsPort int `koanf:"metrics_port"` // 0 disables the metrics listener
}

type StoreConfig struct {
	Type          string      `koanf:"type"` // memory, file, redis
	Dir           string      `koanf:"dir"`
	Redis         RedisConfig `koanf:"redis"`
	EncryptionKey string      `koanf:"encryption_key"` // hex, 32 bytes
}

type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	TTL      time.Duration `koanf:"ttl"`
	Prefix   string        `koanf:"prefix"`
}

type CatalogConfig struct {
	Type string `koanf:"type"` // memory, json, sqlite
	Path string `koanf:"path"`
}

type EvaluatorsConfig struct {
	Config  string        `koanf:"config"`
	Dir     string        `koanf:"dir"`
	Timeout time.Duration `koanf:"timeout"`
	// ArgvPayload also passes the request JSON as the last argument, for
	// scripts that read sys.argv[1] instead of stdin.
	ArgvPayload bool `koanf:"argv_payload"`
}

type PipelineConfig struct {
	StagesFile       string `koanf:"stages_file"`
	ReplayOnRevise   bool   `koanf:"replay_on_revise"`
	StrictEvaluators bool   `koanf:"strict_evaluators"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

var defaults = map[string]any{
	"server.port":         8080,
	"server.metrics_port": 9090,
	"store.type":          "memory",
	"store.dir":           ".canopy/sessions",
	"store.redis.addr":    "localhost:6379",
	"store.redis.prefix":  "canopy:session:",
	"catalog.type":        "memory",
	"evaluators.timeout":  "10s",
	"log.level":           "info",
}

// Load reads configuration. An empty path tries DefaultFile and ignores it
// when absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	} else if explicit || !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	switch c.Catalog.Type {
	case "memory":
	case "json", "sqlite":
		if c.Catalog.Path == "" {
			return fmt.Errorf("catalog type %q requires catalog.path", c.Catalog.Type)
		}
	default:
		return fmt.Errorf("unknown catalog type %q", c.Catalog.Type)
	}
	if c.Evaluators.Timeout <= 0 {
		return fmt.Errorf("evaluators.timeout must be positive")
	}
	return nil
}
