package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	HTTPPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	AllowOrigins    []string

	StoreDriver string
	DB          DBConfig

	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	Stripe StripeConfig

	JWTSecret string

	S3Bucket string
	S3Region string

	Log LogConfig
}

type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	MigrationsPath string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	// APIURL overrides the Stripe API base, used against stripe-mock.
	APIURL  string
	Timeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	Output string
	File   string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("MAX_BODY_BYTES", int64(1<<20))
	v.SetDefault("ALLOW_ORIGINS", "*")

	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "marketplace")
	v.SetDefault("MIGRATIONS_PATH", "internal/repository/migrations")

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("CACHE_TTL", 5*time.Minute)

	v.SetDefault("PAYMENT_TIMEOUT", 10*time.Second)

	v.SetDefault("S3_REGION", "us-east-1")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_OUTPUT", "stdout")
	v.SetDefault("LOG_FILE", "logs/marketplace.log")
}

// Load reads configuration from the environment. If CONFIG_FILE is set, that
// file is read first and environment variables override it.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		HTTPPort:        v.GetString("HTTP_PORT"),
		RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		MaxBodyBytes:    v.GetInt64("MAX_BODY_BYTES"),
		AllowOrigins:    splitList(v.GetString("ALLOW_ORIGINS")),

		StoreDriver: strings.ToLower(v.GetString("STORE_DRIVER")),
		DB: DBConfig{
			Host:           v.GetString("DB_HOST"),
			Port:           v.GetInt("DB_PORT"),
			User:           v.GetString("DB_USER"),
			Password:       v.GetString("DB_PASSWORD"),
			Name:           v.GetString("DB_NAME"),
			MigrationsPath: v.GetString("MIGRATIONS_PATH"),
		},

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		CacheTTL:      v.GetDuration("CACHE_TTL"),

		Stripe: StripeConfig{
			SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
			SuccessURL:    v.GetString("STRIPE_SUCCESS_URL"),
			CancelURL:     v.GetString("STRIPE_CANCEL_URL"),
			APIURL:        v.GetString("STRIPE_API_URL"),
			Timeout:       v.GetDuration("PAYMENT_TIMEOUT"),
		},

		JWTSecret: v.GetString("JWT_SECRET"),

		S3Bucket: v.GetString("S3_BUCKET"),
		S3Region: v.GetString("S3_REGION"),

		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
			Output: v.GetString("LOG_OUTPUT"),
			File:   v.GetString("LOG_FILE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks settings the process cannot start without. Payment and
// identity secrets are optional here; the paths that need them report a
// configuration error at request time.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort == "" {
		errs = append(errs, errors.New("HTTP_PORT is required"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.Stripe.Timeout <= 0 {
		errs = append(errs, errors.New("PAYMENT_TIMEOUT must be positive"))
	}

	switch c.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.DB.Host == "" || c.DB.Name == "" || c.DB.User == "" {
			errs = append(errs, errors.New("DB_HOST, DB_NAME and DB_USER are required for the postgres driver"))
		}
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("invalid DB_PORT: %d", c.DB.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	return errors.Join(errs...)
}

// PaymentsConfigured reports whether checkout sessions can be created.
func (c StripeConfig) PaymentsConfigured() bool {
	return c.SecretKey != "" && c.SuccessURL != "" && c.CancelURL != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
