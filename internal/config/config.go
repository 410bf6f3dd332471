package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the API server.
type Config struct {
	Env        string     `mapstructure:"env"`
	Debug      bool       `mapstructure:"debug"`
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
	Auth       Auth       `mapstructure:"auth"`
	Settlement Settlement `mapstructure:"settlement"`
	CORS       CORS       `mapstructure:"cors"`
	Bootstrap  Bootstrap  `mapstructure:"bootstrap"`
}

// Server holds the HTTP listener settings.
type Server struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Database selects the gorm driver and its DSN.
type Database struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	DSN    string `mapstructure:"dsn"`
}

// Auth holds JWT signing settings.
type Auth struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// Settlement tunes the expiry scheduler and the countdown stream.
type Settlement struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type CORS struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Bootstrap is the admin account created on first start.
type Bootstrap struct {
	AdminEmail     string `mapstructure:"admin_email"`
	AdminAPIKey    string `mapstructure:"admin_api_key"`
	AdminAPISecret string `mapstructure:"admin_api_secret"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from an optional config.yml under path, a .env
// file, and the environment. Environment variables win; nested keys use
// underscores (SETTLEMENT_TICK_INTERVAL).
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("debug", false)
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "tradedesk.db")
	v.SetDefault("auth.jwt_secret", "tradedesk-secret-key")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("settlement.tick_interval", time.Second)
	v.SetDefault("settlement.batch_size", 100)
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("bootstrap.admin_email", "admin@tradedesk.local")
	v.SetDefault("bootstrap.admin_api_key", "admin-api-key")
	v.SetDefault("bootstrap.admin_api_secret", "admin-api-secret")
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return errors.New("database.driver must be sqlite or postgres")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.IsProduction() && c.Auth.JWTSecret == "tradedesk-secret-key" {
		return errors.New("auth.jwt_secret must be set in production")
	}
	if c.Settlement.TickInterval <= 0 {
		return errors.New("settlement.tick_interval must be positive")
	}
	if c.Settlement.BatchSize <= 0 {
		return errors.New("settlement.batch_size must be positive")
	}
	return nil
}
