package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Reconciliation sinks.
const (
	SinkRedis = "redis"
	SinkKafka = "kafka"
)

// Config captures application runtime configuration.
type Config struct {
	AppName         string
	AppEnv          string
	Port            string
	LogLevel        string
	LogFormat       string
	DatabaseURL     string
	RedisURL        string
	ShutdownPeriod  time.Duration
	IdempotencyTTL  time.Duration
	JWTSecret       string
	DefaultCurrency string

	WebhookSecret          string
	WebhookSignatureHeader string
	WebhookAllowUnsigned   bool
	AuthorizationDeadline  time.Duration

	ProcessorBaseURL   string
	ProcessorPublicKey string
	ProcessorTimeout   time.Duration

	ReconciliationSink         string
	ReconciliationMaxAttempts  int
	ReconciliationPollInterval time.Duration
	KafkaBrokers               []string
	KafkaReconciliationTopic   string

	PaymentsRateLimit int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "walletcore")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("IDEMPOTENCY_TTL", 24*time.Hour)
	v.SetDefault("DEFAULT_CURRENCY", "NGN")
	v.SetDefault("WEBHOOK_SIGNATURE_HEADER", "X-Processor-Signature")
	v.SetDefault("WEBHOOK_ALLOW_UNSIGNED", false)
	v.SetDefault("AUTHORIZATION_DEADLINE", 2500*time.Millisecond)
	v.SetDefault("PROCESSOR_TIMEOUT", 15*time.Second)
	v.SetDefault("RECONCILIATION_SINK", SinkRedis)
	v.SetDefault("RECONCILIATION_MAX_ATTEMPTS", 5)
	v.SetDefault("RECONCILIATION_POLL_INTERVAL", 5*time.Second)
	v.SetDefault("KAFKA_RECONCILIATION_TOPIC", "walletcore.reconciliation")
	v.SetDefault("PAYMENTS_RATE_LIMIT", 60)
}

// Load reads configuration from the environment. When CONFIG_FILE is set, that file (.env,
// yaml, json or toml) is read first and environment variables override it.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper builds and validates a Config from v.
func FromViper(v *viper.Viper) (Config, error) {
	setDefaults(v)

	cfg := Config{
		AppName:         v.GetString("APP_NAME"),
		AppEnv:          strings.ToLower(v.GetString("APP_ENV")),
		Port:            v.GetString("PORT"),
		LogLevel:        strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:       strings.ToLower(v.GetString("LOG_FORMAT")),
		DatabaseURL:     v.GetString("DATABASE_URL"),
		RedisURL:        v.GetString("REDIS_URL"),
		ShutdownPeriod:  v.GetDuration("SHUTDOWN_TIMEOUT"),
		IdempotencyTTL:  v.GetDuration("IDEMPOTENCY_TTL"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		DefaultCurrency: strings.ToUpper(v.GetString("DEFAULT_CURRENCY")),

		WebhookSecret:          v.GetString("WEBHOOK_SECRET"),
		WebhookSignatureHeader: v.GetString("WEBHOOK_SIGNATURE_HEADER"),
		WebhookAllowUnsigned:   v.GetBool("WEBHOOK_ALLOW_UNSIGNED"),
		AuthorizationDeadline:  v.GetDuration("AUTHORIZATION_DEADLINE"),

		ProcessorBaseURL:   strings.TrimRight(v.GetString("PROCESSOR_BASE_URL"), "/"),
		ProcessorPublicKey: v.GetString("PROCESSOR_PUBLIC_KEY"),
		ProcessorTimeout:   v.GetDuration("PROCESSOR_TIMEOUT"),

		ReconciliationSink:         strings.ToLower(v.GetString("RECONCILIATION_SINK")),
		ReconciliationMaxAttempts:  v.GetInt("RECONCILIATION_MAX_ATTEMPTS"),
		ReconciliationPollInterval: v.GetDuration("RECONCILIATION_POLL_INTERVAL"),
		KafkaBrokers:               splitList(v.GetString("KAFKA_BROKERS")),
		KafkaReconciliationTopic:   v.GetString("KAFKA_RECONCILIATION_TOPIC"),

		PaymentsRateLimit: v.GetInt("PAYMENTS_RATE_LIMIT"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if !c.IsDevelopment() {
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL must be set"))
		}
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL must be set"))
		}
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET must be set"))
		}
		if c.ProcessorBaseURL == "" {
			errs = append(errs, errors.New("PROCESSOR_BASE_URL must be set"))
		}
	}
	if c.WebhookSecret == "" && !c.WebhookAllowUnsigned {
		errs = append(errs, errors.New("WEBHOOK_SECRET must be set unless WEBHOOK_ALLOW_UNSIGNED=true"))
	}
	if c.AuthorizationDeadline <= 0 {
		errs = append(errs, errors.New("AUTHORIZATION_DEADLINE must be positive"))
	}
	switch c.ReconciliationSink {
	case SinkRedis:
	case SinkKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS must be set when RECONCILIATION_SINK=kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("RECONCILIATION_SINK %q is not one of redis, kafka", c.ReconciliationSink))
	}
	if c.ReconciliationMaxAttempts < 1 {
		errs = append(errs, errors.New("RECONCILIATION_MAX_ATTEMPTS must be at least 1"))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether in-memory backends are acceptable.
func (c Config) IsDevelopment() bool {
	switch c.AppEnv {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
