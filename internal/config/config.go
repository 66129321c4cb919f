package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	APIPort  int `yaml:"apiPort"`
	Database struct {
		Driver     string `yaml:"driver"`
		Path       string `yaml:"path"`
		DSN        string `yaml:"dsn"`
		MaxRetries int    `yaml:"maxRetries"`
		RetryDelay int    `yaml:"retryDelay"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret      string        `yaml:"jwtSecret"`
		TokenDuration  time.Duration `yaml:"tokenDuration"`
		CookieSecure   bool          `yaml:"cookieSecure"`
		MinPasswordLen int           `yaml:"minPasswordLen"`
	} `yaml:"auth"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"cors"`
	Events struct {
		MaxPerUser int `yaml:"maxPerUser"`
	} `yaml:"events"`
}

// LoadConfig loads the configuration from file and environment variables.
// A missing config file is not an error: defaults and TAGLAB_* environment
// overrides still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TAGLAB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Every key must be registered here: Unmarshal only decodes known keys,
	// and a TAGLAB_* variable can only override a key viper knows about.
	v.SetDefault("apiPort", 3000)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/taglab.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxRetries", 5)
	v.SetDefault("database.retryDelay", 2)
	// Must be overridden in production via TAGLAB_AUTH_JWTSECRET.
	v.SetDefault("auth.jwtSecret", "change-me-in-production")
	v.SetDefault("auth.tokenDuration", 7*24*time.Hour)
	v.SetDefault("auth.cookieSecure", true)
	v.SetDefault("auth.minPasswordLen", 6)
	v.SetDefault("cors.allowedOrigins", []string{"http://localhost:*", "http://127.0.0.1:*"})
	v.SetDefault("events.maxPerUser", 20)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
