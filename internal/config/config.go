package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		ENV string `env:"APP_ENV" envDefault:"production"`
	}

	Log LogConfig

	DB struct {
		Driver     string `env:"DB_DRIVER" envDefault:"mysql"`
		DSN        string `env:"MYSQL_DSN"`
		Host       string `env:"DB_HOST" envDefault:"localhost"`
		Port       string `env:"DB_PORT" envDefault:"3306"`
		User       string `env:"DB_USER" envDefault:"root"`
		Password   string `env:"DB_PASSWORD" envDefault:"root"`
		Name       string `env:"DB_NAME" envDefault:"matchmaker"`
		SQLitePath string `env:"SQLITE_PATH" envDefault:"matchmaker.db"`
		LogSQL     bool   `env:"DB_LOG_SQL" envDefault:"false"`
	}

	Redis struct {
		Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	GRPC struct {
		Host string `env:"GRPC_HOST" envDefault:"127.0.0.1"`
		Port string `env:"GRPC_PORT" envDefault:"50051"`
	}

	Metrics struct {
		Addr string `env:"METRICS_ADDR" envDefault:":9090"`
	}

	Lifecycle struct {
		// SecondPartyWindow is how long the second party has to reply once
		// the suggestion is forwarded to them.
		SecondPartyWindow time.Duration `env:"SECOND_PARTY_RESPONSE_WINDOW" envDefault:"72h"`
	}

	Sweeper struct {
		Enabled   bool          `env:"SWEEPER_ENABLED" envDefault:"true"`
		Interval  time.Duration `env:"SWEEPER_INTERVAL" envDefault:"5m"`
		BatchSize int           `env:"SWEEPER_BATCH_SIZE" envDefault:"100"`
		LockTTL   time.Duration `env:"SWEEPER_LOCK_TTL" envDefault:"2m"`
	}

	Notify struct {
		// Backend is one of redis, kafka or log.
		Backend      string   `env:"NOTIFY_BACKEND" envDefault:"redis"`
		Stream       string   `env:"NOTIFY_STREAM" envDefault:"suggestions:intents"`
		StreamMaxLen int64    `env:"NOTIFY_STREAM_MAXLEN" envDefault:"100000"`
		KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
		KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"suggestion-intents"`
	}

	Worker struct {
		AutoAdvance bool   `env:"AUTO_ADVANCE_ENABLED" envDefault:"false"`
		Group       string `env:"AUTO_ADVANCE_GROUP" envDefault:"auto-advance"`
		Consumer    string `env:"AUTO_ADVANCE_CONSUMER" envDefault:"worker-1"`
	}
}

// LogConfig is the logger section, split out so the logger package can be
// configured without building a whole Config.
type LogConfig struct {
	Level     string `env:"LOG_LEVEL" envDefault:"info"`
	Format    string `env:"LOG_FORMAT" envDefault:"text"`
	Component string `env:"LOG_COMPONENT" envDefault:"suggestions"`
	Source    bool   `env:"LOG_SOURCE" envDefault:"false"`
}

// New reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	if cfg.DB.DSN == "" {
		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}
	cfg.Notify.Backend = strings.ToLower(strings.TrimSpace(cfg.Notify.Backend))

	return cfg, nil
}

// IsDevelopment reports whether the app runs with development conveniences
// such as demo seeding.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.App.ENV, "development")
}
