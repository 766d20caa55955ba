package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cpaggregator/cpaggregator/internal/logger"
	"github.com/cpaggregator/cpaggregator/internal/validator"
)

type PostgresConfig struct {
	User               string        `validate:"required"`
	Password           string        `validate:"required"`
	Host               string        `validate:"required"`
	Database           string        `validate:"required"`
	MaxIdleConnections int           `validate:"required" mapstructure:"max_idle_connections"`
	MaxOpenConnections int           `validate:"required" mapstructure:"max_open_connections"`
	ConnectionTTL      time.Duration `validate:"required" mapstructure:"connection_ttl"`
	Port               int16         `validate:"required"`
}

type RedisConfig struct {
	Host string `mapstructure:"host"`
}

type SlogConfig struct {
	Level int `mapstructure:"level"`
}

type GormLogConfig struct {
	Level int `mapstructure:"level"`
}

type LoggingConfig struct {
	Gorm GormLogConfig `mapstructure:"gorm"`
	App  SlogConfig    `mapstructure:"app"`
}

// ScraperConfig tunes the fetch client and the ingestion orchestrator.
// RequestsPerMinute is a per-judge outbound budget; zero disables the
// throttle entirely.
type ScraperConfig struct {
	UserAgent         string        `mapstructure:"user_agent"          validate:"required"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"       validate:"required"`
	MaxFetchAttempts  int           `mapstructure:"max_fetch_attempts"  validate:"required"`
	PageSize          int           `mapstructure:"page_size"           validate:"required"`
	BatchSize         int           `mapstructure:"batch_size"          validate:"required"`
	RequestsPerMinute int64         `mapstructure:"requests_per_minute"`
}

type Config struct {
	Postgres *PostgresConfig `mapstructure:"postgres" validate:"required"`
	Redis    *RedisConfig    `mapstructure:"redis"`
	Logging  *LoggingConfig  `mapstructure:"logging"`
	Scraper  *ScraperConfig  `mapstructure:"scraper"  validate:"required"`
}

const (
	AppLogLevel                string = "logging.app.level"
	EnvPrefix                  string = "cpaggregator"
	GormLogLevel               string = "logging.gorm.level"
	PostgresDatabase           string = "postgres.database"
	PostgresHost               string = "postgres.host"
	PostgresPassword           string = "postgres.password"
	PostgresPort               string = "postgres.port"
	PostgresUser               string = "postgres.user"
	PostgresMaxIdleConnections string = "postgres.max_idle_connections"
	PostgresMaxOpenConnections string = "postgres.max_open_connections"
	PostgresConnectionTTL      string = "postgres.connection_ttl"
	RedisHost                  string = "redis.host"
	ScraperUserAgent           string = "scraper.user_agent"
	ScraperRetryBackoff        string = "scraper.retry_backoff"
	ScraperMaxFetchAttempts    string = "scraper.max_fetch_attempts"
	ScraperPageSize            string = "scraper.page_size"
	ScraperBatchSize           string = "scraper.batch_size"
	ScraperRequestsPerMinute   string = "scraper.requests_per_minute"
)

var configReady = false
var config Config

func GetConfig() (*Config, error) {
	if configReady {
		logger.Logger.Debug("returning already-loaded config")
		return &config, nil
	}
	logger.Logger.Info("loading config")

	v := viper.New()

	v.SetConfigName("cpaggregator")

	v.AddConfigPath("/etc/cpaggregator/")
	v.AddConfigPath(".")

	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.AutomaticEnv()

	// workaround for https://github.com/spf13/viper/issues/761
	// bind env vars explicitly so they unmarshal into the nested struct
	err := v.BindEnv(PostgresPassword)
	if err != nil {
		return nil, err
	}
	err = v.BindEnv(PostgresUser)
	if err != nil {
		return nil, err
	}

	v.SetDefault(PostgresHost, "localhost")
	v.SetDefault(PostgresPort, 5432)
	v.SetDefault(PostgresMaxIdleConnections, 2)
	v.SetDefault(PostgresMaxOpenConnections, 10)
	v.SetDefault(PostgresConnectionTTL, 10*time.Minute)
	v.SetDefault(RedisHost, "localhost")
	v.SetDefault(AppLogLevel, int(slog.LevelDebug))
	v.SetDefault(GormLogLevel, int(slog.LevelWarn))

	v.SetDefault(ScraperUserAgent, "cpaggregator/1.0")
	v.SetDefault(ScraperRetryBackoff, 10*time.Second)
	v.SetDefault(ScraperMaxFetchAttempts, 10)
	v.SetDefault(ScraperPageSize, 200)
	v.SetDefault(ScraperBatchSize, 100)
	v.SetDefault(ScraperRequestsPerMinute, 0)

	err = v.ReadInConfig()
	if err != nil {
		// ignore config file not found to allow pure env config
		if _, ok := err.(*viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	err = v.Unmarshal(&config)
	if err != nil {
		configReady = false
		return nil, err
	}

	valid := validator.Create()
	err = valid.Validate(&config)
	if err != nil {
		configReady = false
		return nil, err
	}

	configReady = true
	return &config, nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s",
		url.QueryEscape(c.Postgres.User),
		url.QueryEscape(c.Postgres.Password),
		c.Postgres.Host, c.Postgres.Port,
		url.QueryEscape(c.Postgres.Database),
	)
}
