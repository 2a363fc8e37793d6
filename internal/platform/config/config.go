// Package config loads planner settings from defaults, an optional config
// file and PLANNER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/daily-planner/planner/internal/platform/env"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var ErrUnknownDriver = errors.New("storage.driver must be postgres or sqlite")

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	StoreTimeout    time.Duration `mapstructure:"store_timeout"`
	AllowedOrigin   string        `mapstructure:"allowed_origin"`
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	DatabaseURL string `mapstructure:"database_url"`
	SQLitePath  string `mapstructure:"sqlite_path"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	SecureCookies bool          `mapstructure:"secure_cookies"`
}

type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SearchConfig struct {
	InlineLimit int `mapstructure:"inline_limit"`
}

// ClientConfig is read by the terminal client only.
type ClientConfig struct {
	APIBase        string        `mapstructure:"api_base"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CredentialsDir string        `mapstructure:"credentials_dir"`
	// FilePassword unlocks the file keyring when no system keyring exists.
	FilePassword string `mapstructure:"file_password"`
}

type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	Storage StorageConfig `mapstructure:"storage"`
	Auth    AuthConfig    `mapstructure:"auth"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Log     LogConfig     `mapstructure:"log"`
	Search  SearchConfig  `mapstructure:"search"`
	Client  ClientConfig  `mapstructure:"client"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", env.DefaultWebAddr)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.store_timeout", 5*time.Second)
	v.SetDefault("http.allowed_origin", "")
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.database_url", env.DefaultDatabaseURL)
	v.SetDefault("storage.sqlite_path", env.DefaultSQLitePath)
	v.SetDefault("auth.jwt_secret", "dev-insecure-change-me")
	v.SetDefault("auth.access_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_ttl", 30*24*time.Hour)
	v.SetDefault("auth.secure_cookies", false)
	v.SetDefault("nats.url", env.DefaultNATSURL)
	v.SetDefault("nats.connect_timeout", 20*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("search.inline_limit", 10)
	v.SetDefault("client.api_base", env.DefaultAPIBase)
	v.SetDefault("client.timeout", 10*time.Second)
	v.SetDefault("client.credentials_dir", "~/.config/daily-planner")
	v.SetDefault("client.file_password", "")
}

// Load reads configuration. An empty path falls back to PLANNER_CONFIG; a
// missing file is not an error when the path was not given explicitly.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PLANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("PLANNER_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			var pathErr *os.PathError
			missing := errors.As(err, &notFound) || errors.As(err, &pathErr)
			if !missing || explicit {
				return Config{}, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return ErrUnknownDriver
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.HTTP.StoreTimeout <= 0 {
		c.HTTP.StoreTimeout = 5 * time.Second
	}
	if c.Auth.AccessTTL <= 0 {
		c.Auth.AccessTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTTL <= 0 {
		c.Auth.RefreshTTL = 30 * 24 * time.Hour
	}
	if c.Search.InlineLimit <= 0 {
		c.Search.InlineLimit = 10
	}
	c.NATS.URL = strings.TrimSpace(c.NATS.URL)
	c.Client.APIBase = strings.TrimRight(strings.TrimSpace(c.Client.APIBase), "/")
	if c.Client.APIBase == "" {
		c.Client.APIBase = env.DefaultAPIBase
	}
	if c.Client.Timeout <= 0 {
		c.Client.Timeout = 10 * time.Second
	}
	return nil
}
