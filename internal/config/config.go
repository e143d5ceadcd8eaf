package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"` // debug | info | warn | error
	} `yaml:"log"`

	Storage struct {
		Driver string `yaml:"driver"` // memory | fs | pg
		DSN    string `yaml:"dsn"`    // pg
		FSRoot string `yaml:"fs_root"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
		// TTL del cache advisory de registros de namespace.
		RecordTTL string `yaml:"record_ttl"`
	} `yaml:"cache"`

	// Registry externo de claves asimétricas.
	Registry struct {
		BaseURL string `yaml:"base_url"`
		Token   string `yaml:"token"`
	} `yaml:"registry"`

	// Presupuesto de reintentos del conditional update de rotación.
	Rotation struct {
		MaxRetries int    `yaml:"max_retries"`
		RetryBase  string `yaml:"retry_base"`
	} `yaml:"rotation"`
}

// Load lee el YAML (si path no está vacío), aplica defaults y pisa con env.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.FSRoot == "" {
		c.Storage.FSRoot = "./data/keymint"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Cache.RecordTTL == "" {
		c.Cache.RecordTTL = "30s"
	}
	if c.Rotation.MaxRetries == 0 {
		c.Rotation.MaxRetries = 6
	}
	if c.Rotation.RetryBase == "" {
		c.Rotation.RetryBase = "25ms"
	}

	c.applyEnvOverrides()

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// MemoryCacheTTL es Cache.Memory.DefaultTTL ya parseado.
func (c *Config) MemoryCacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.Cache.Memory.DefaultTTL)
	return d
}

// RecordCacheTTL es Cache.RecordTTL ya parseado.
func (c *Config) RecordCacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.Cache.RecordTTL)
	return d
}

// RotationRetryBase es Rotation.RetryBase ya parseado.
func (c *Config) RotationRetryBase() time.Duration {
	d, _ := time.ParseDuration(c.Rotation.RetryBase)
	return d
}

func (c *Config) validate() error {
	// validate string durations
	for name, s := range map[string]string{
		"cache.memory.default_ttl": c.Cache.Memory.DefaultTTL,
		"cache.record_ttl":         c.Cache.RecordTTL,
		"rotation.retry_base":      c.Rotation.RetryBase,
	} {
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	switch c.Storage.Driver {
	case "memory", "fs", "pg", "postgres":
	default:
		return fmt.Errorf("config: storage.driver %q not supported", c.Storage.Driver)
	}
	if (c.Storage.Driver == "pg" || c.Storage.Driver == "postgres") && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn required for driver pg")
	}
	return nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}

	// LOG
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("STORAGE_FS_ROOT"); ok {
		c.Storage.FSRoot = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvStr("CACHE_MEMORY_DEFAULT_TTL"); ok {
		c.Cache.Memory.DefaultTTL = v
	}
	if v, ok := getEnvStr("CACHE_RECORD_TTL"); ok {
		c.Cache.RecordTTL = v
	}

	// REGISTRY
	if v, ok := getEnvStr("REGISTRY_BASE_URL"); ok {
		c.Registry.BaseURL = v
	}
	if v, ok := getEnvStr("REGISTRY_TOKEN"); ok {
		c.Registry.Token = v
	}

	// ROTATION
	if v, ok := getEnvInt("ROTATION_MAX_RETRIES"); ok {
		c.Rotation.MaxRetries = v
	}
	if v, ok := getEnvStr("ROTATION_RETRY_BASE"); ok {
		c.Rotation.RetryBase = v
	}
}
