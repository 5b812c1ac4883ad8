package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

// EnvPrefix namespaces every environment variable the client reads.
const EnvPrefix = "ATELIER"

type Config struct {
	APIURL        string        `mapstructure:"api_url"`         // Backend base URL, /api is appended (default: http://localhost:5000)
	Timeout       time.Duration `mapstructure:"timeout"`         // Per-attempt request timeout (default: 10s)
	RateLimit     float64       `mapstructure:"rate_limit"`      // Outbound requests per second, 0 disables (default: 0)
	RateBurst     int           `mapstructure:"rate_burst"`      // Outbound burst size (default: 5)
	StorePath     string        `mapstructure:"store_path"`      // SQLite credential store (default: <config dir>/atelier/atelier.db)
	MasterKeyPath string        `mapstructure:"master_key_path"` // Key sealing stored credentials (default: <config dir>/atelier/master.key)
	Env           string        `mapstructure:"env"`             // Environment (dev, staging, prod) (default: prod)
	LogLevel      string        `mapstructure:"log_level"`       // Log level (debug, info, warn, error) (default: warn)
	LogFormat     string        `mapstructure:"log_format"`      // Log format (json, text) (default: text)
	CheckInterval time.Duration `mapstructure:"check_interval"`  // Background session check interval (default: 5m)
	ShopTTL       time.Duration `mapstructure:"shop_ttl"`        // Product list cache lifetime (default: 1m)
	DownloadDir   string        `mapstructure:"download_dir"`    // Where CSV exports are written (default: .)

	DevServerPort     int           `mapstructure:"devserver_port"`      // Dev backend port (default: 5000)
	DevServerTokenTTL time.Duration `mapstructure:"devserver_token_ttl"` // Dev backend access token lifetime (default: 15m)
	DevServerSecret   string        `mapstructure:"devserver_secret"`    // Dev backend bootstrap secret for create-secure-admin
	DevServerLoginRPM int           `mapstructure:"devserver_login_rpm"` // Dev backend login attempts per minute per IP (default: 10)
}

// LoadConfig reads configuration from, in increasing precedence: defaults,
// an optional atelier.yaml in dir, a .env file in the working directory,
// and ATELIER_* environment variables.
func LoadConfig(dir string) (Config, error) {
	// .env is optional; a missing file is not an error.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.SetConfigName("atelier")
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.APIURL = shopsdk.NormalizeBaseURL(cfg.APIURL)
	return cfg, cfg.Validate()
}

func setDefaults(v *viper.Viper) {
	base := defaultDataDir()

	v.SetDefault("api_url", shopsdk.DefaultBaseURL)
	v.SetDefault("timeout", shopsdk.DefaultTimeout)
	v.SetDefault("rate_limit", 0)
	v.SetDefault("rate_burst", 5)
	v.SetDefault("store_path", filepath.Join(base, "atelier.db"))
	v.SetDefault("master_key_path", filepath.Join(base, "master.key"))
	v.SetDefault("env", "prod")
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "text")
	v.SetDefault("check_interval", 5*time.Minute)
	v.SetDefault("shop_ttl", time.Minute)
	v.SetDefault("download_dir", ".")
	v.SetDefault("devserver_port", 5000)
	v.SetDefault("devserver_token_ttl", 15*time.Minute)
	v.SetDefault("devserver_secret", "")
	v.SetDefault("devserver_login_rpm", 10)
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "atelier")
}

// Validate rejects values the client cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Timeout <= 0:
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	case c.RateLimit < 0:
		return fmt.Errorf("rate_limit must not be negative, got %v", c.RateLimit)
	case c.StorePath == "":
		return errors.New("store_path is required")
	case c.MasterKeyPath == "":
		return errors.New("master_key_path is required")
	case c.DevServerPort <= 0 || c.DevServerPort > 65535:
		return fmt.Errorf("devserver_port out of range: %d", c.DevServerPort)
	case c.DevServerLoginRPM <= 0:
		return fmt.Errorf("devserver_login_rpm must be positive, got %d", c.DevServerLoginRPM)
	}
	return nil
}
