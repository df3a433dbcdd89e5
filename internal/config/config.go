package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "WALLQUOTE_"
	fileEnvVar = "WALLQUOTE_CONFIG"
)

type Config struct {
	HTTP struct {
		Addr            string        `koanf:"addr"`
		AllowedOrigin   string        `koanf:"allowed_origin"`
		ReadTimeout     time.Duration `koanf:"read_timeout"`
		WriteTimeout    time.Duration `koanf:"write_timeout"`
		IdleTimeout     time.Duration `koanf:"idle_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	} `koanf:"http"`

	Database struct {
		URL string `koanf:"url"`
	} `koanf:"database"`

	Redis struct {
		Addr     string        `koanf:"addr"`
		Password string        `koanf:"password"`
		DB       int           `koanf:"db"`
		ZoneTTL  time.Duration `koanf:"zone_ttl"`
	} `koanf:"redis"`

	Auth struct {
		Secret   string        `koanf:"secret"`
		TokenTTL time.Duration `koanf:"token_ttl"`
	} `koanf:"auth"`

	Log struct {
		Level     string `koanf:"level"`
		File      string `koanf:"file"`
		MaxSizeMB int    `koanf:"max_size_mb"`
	} `koanf:"log"`

	Zones struct {
		File string `koanf:"file"`
	} `koanf:"zones"`

	Booking struct {
		Enabled    bool          `koanf:"enabled"`
		PortalURL  string        `koanf:"portal_url"`
		Username   string        `koanf:"username"`
		Password   string        `koanf:"password"`
		TestMode   bool          `koanf:"test_mode"`
		Timeout    time.Duration `koanf:"timeout"`
		ChromePath string        `koanf:"chrome_path"`
		Sender     struct {
			Company      string `koanf:"company"`
			Phone        string `koanf:"phone"`
			Salesperson  string `koanf:"salesperson"`
			Email        string `koanf:"email"`
			PickupName   string `koanf:"pickup_name"`
			PickupNo     string `koanf:"pickup_no"`
			PickupStreet string `koanf:"pickup_street"`
			PickupSuburb string `koanf:"pickup_suburb"`
		} `koanf:"sender"`
	} `koanf:"booking"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"http.addr":             ":8080",
		"http.allowed_origin":   "http://127.0.0.1:3000",
		"http.read_timeout":     "10s",
		"http.write_timeout":    "3m",
		"http.idle_timeout":     "60s",
		"http.shutdown_timeout": "8s",
		"redis.db":              0,
		"redis.zone_ttl":        "6h",
		"auth.token_ttl":        "8h",
		"log.level":             "info",
		"log.max_size_mb":       50,
		"booking.enabled":       false,
		"booking.test_mode":     true,
		"booking.timeout":       "2m",
	}
}

// Load reads defaults, then the optional YAML file named by WALLQUOTE_CONFIG,
// then WALLQUOTE_ environment variables. Nested keys use a double
// underscore, e.g. WALLQUOTE_BOOKING__PORTAL_URL. A .env file in the working
// directory is applied first and never overrides variables already set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path := strings.TrimSpace(os.Getenv(fileEnvVar)); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	cfg.Auth.Secret = strings.TrimSpace(cfg.Auth.Secret)
	return cfg, nil
}

func envKey(s string) string {
	if s == fileEnvVar {
		return ""
	}
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ReplaceAll(s, "__", ".")
	return strings.ToLower(s)
}

// Validate rejects settings the server must not start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("http.addr required")
	}
	if len(c.Auth.Secret) < 32 {
		return fmt.Errorf("auth.secret must be set and at least 32 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Booking.Enabled {
		if strings.TrimSpace(c.Booking.Username) == "" || c.Booking.Password == "" {
			return fmt.Errorf("booking.username and booking.password required when booking is enabled")
		}
		if c.Booking.Timeout <= 0 {
			return fmt.Errorf("booking.timeout must be positive")
		}
	}
	return nil
}
