package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the static infrastructure settings read once at startup.
// Dispatch and fare knobs are served separately by Provider, which
// re-reads them so operators can retune without a restart.
type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	Redis struct {
		Host     string
		Port     int
		Password string
		DB       int
	}
	Server struct {
		Port         int
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
		IdleTimeout  time.Duration
	}
	JWT struct {
		SecretKey string
		AccessTTL time.Duration
	}
}

// Load reads configuration from a YAML file (if present) and the
// environment. Env vars always win so containers can override the file.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// the file is optional; env-only deployments are fine
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	cfg.Database.Host = v.GetString("DB_HOST")
	cfg.Database.Port = v.GetInt("DB_PORT")
	cfg.Database.User = v.GetString("DB_USER")
	cfg.Database.Password = v.GetString("DB_PASSWORD")
	cfg.Database.Name = v.GetString("DB_NAME")

	cfg.RabbitMQ.Host = v.GetString("RABBITMQ_HOST")
	cfg.RabbitMQ.Port = v.GetInt("RABBITMQ_PORT")
	cfg.RabbitMQ.User = v.GetString("RABBITMQ_USER")
	cfg.RabbitMQ.Password = v.GetString("RABBITMQ_PASSWORD")

	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")

	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	cfg.JWT.SecretKey = v.GetString("JWT_SECRET")
	cfg.JWT.AccessTTL = v.GetDuration("JWT_ACCESS_TTL")

	if err := cfg.validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	// hot reload for the dispatch/fare knobs served by Provider
	v.WatchConfig()

	return cfg, v, nil
}

func setDefaults(v *viper.Viper) {
	// infrastructure
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "dispatch")
	v.SetDefault("DB_PASSWORD", "dispatch")
	v.SetDefault("DB_NAME", "dispatch")

	v.SetDefault("RABBITMQ_HOST", "localhost")
	v.SetDefault("RABBITMQ_PORT", 5672)
	v.SetDefault("RABBITMQ_USER", "guest")
	v.SetDefault("RABBITMQ_PASSWORD", "guest")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("SERVER_PORT", 3000)
	v.SetDefault("SERVER_READ_TIMEOUT", "10s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "15s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "60s")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ACCESS_TTL", "2h")

	// dispatcher knobs (spec defaults)
	v.SetDefault("DISPATCH_INITIAL_RADIUS_KM", 2.0)
	v.SetDefault("DISPATCH_MAX_RADIUS_KM", 10.0)
	v.SetDefault("DISPATCH_RADIUS_INCREMENT_KM", 1.0)
	v.SetDefault("DISPATCH_OFFER_TIMEOUT_SEC", 15)
	v.SetDefault("DISPATCH_INTER_RADIUS_PAUSE_SEC", 5)
	v.SetDefault("DISPATCH_MAX_TIME_SEC", 300)
	v.SetDefault("DISPATCH_GRACE_SEC", 30)
	v.SetDefault("DISPATCH_SWEEP_INTERVAL_SEC", 30)
	v.SetDefault("DISPATCH_CAPTAIN_COOLDOWN_SEC", 60)
	v.SetDefault("CAPTAIN_LOCATION_TTL_SEC", 60)
	v.SetDefault("RESTORE_WINDOW_MIN", 30)
	v.SetDefault("RESTORE_RADIUS_KM", 10.0)
	v.SetDefault("RESTORE_MAX_OFFERS", 5)

	// fare policy knobs
	v.SetDefault("FARE_BASE", 1000.0)
	v.SetDefault("FARE_PER_KM", 500.0)
	v.SetDefault("FARE_PER_MIN", 100.0)
	v.SetDefault("FARE_MIN", 2000.0)
	v.SetDefault("FARE_MAX", 0.0) // 0 disables the cap
	v.SetDefault("FARE_NIGHT_MULT", 1.0)
	v.SetDefault("FARE_WEEKEND_MULT", 1.0)
	v.SetDefault("FARE_SURGE_MULT", 1.0)
	v.SetDefault("FARE_CURRENCY", "IQD")
	v.SetDefault("FARE_FREE_CANCEL_WINDOW_SEC", 120)
	v.SetDefault("FARE_CANCELLATION_FEE", 1000.0)
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "DB_PORT must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "DB_USER is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "DB_NAME is required")
	}
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "RABBITMQ_PORT must be in 1..65535")
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		problems = append(problems, "REDIS_PORT must be in 1..65535")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "SERVER_PORT must be in 1..65535")
	}
	if strings.TrimSpace(c.JWT.SecretKey) == "" {
		problems = append(problems, "JWT_SECRET is required")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// PostgresDSN builds the pgx connection string (password kept out of logs).
func (c *Config) PostgresDSN() string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Database.Port)),
		Path:   "/" + c.Database.Name,
		User:   url.UserPassword(c.Database.User, c.Database.Password),
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}

// AMQPURL builds the RabbitMQ connection string.
func (c *Config) AMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}

// RedisAddr returns the Redis address in host:port format.
func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.Redis.Host, strconv.Itoa(c.Redis.Port))
}
