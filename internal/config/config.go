package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	API    APIConfig    `yaml:"api" mapstructure:"api"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Poll   PollConfig   `yaml:"poll" mapstructure:"poll"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// APIConfig holds backend connection settings.
type APIConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	Token     string  `yaml:"token" mapstructure:"token"`
	ClientID  string  `yaml:"client_id" mapstructure:"client_id"`
	TaxID     string  `yaml:"tax_id" mapstructure:"tax_id"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// StoreConfig configures the local snapshot database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PollConfig configures job status polling.
type PollConfig struct {
	IntervalSecs   int `yaml:"interval_secs" mapstructure:"interval_secs"`
	FinalDelaySecs int `yaml:"final_delay_secs" mapstructure:"final_delay_secs"`
}

// Interval returns the poll interval as a duration (zero when unset).
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSecs) * time.Second
}

// FinalDelay returns the delay before the confirming fetch.
func (p PollConfig) FinalDelay() time.Duration {
	return time.Duration(p.FinalDelaySecs) * time.Second
}

// ServerConfig configures the local read-only status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the fields a given mode needs are present. Modes:
// "client" for commands that talk to the backend, "serve" for the local
// status server, "store" for store-only commands.
func (c *Config) Validate(mode string) error {
	var missing []string

	storeOK := func() {
		switch c.Store.Driver {
		case "sqlite", "":
			if c.Store.Path == "" {
				missing = append(missing, "store.path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				missing = append(missing, "store.database_url is required for the postgres driver")
			}
		default:
			missing = append(missing, "store.driver must be sqlite or postgres")
		}
	}

	switch mode {
	case "client":
		if c.API.BaseURL == "" {
			missing = append(missing, "api.base_url is required")
		}
		if c.API.Token == "" {
			missing = append(missing, "api.token is required")
		}
		if c.API.ClientID == "" {
			missing = append(missing, "api.client_id is required")
		}
		storeOK()
	case "serve":
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
		storeOK()
	case "store":
		storeOK()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CIERRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api.rate_limit", 5.0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "cierre.db")
	v.SetDefault("poll.interval_secs", 4)
	v.SetDefault("poll.final_delay_secs", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
