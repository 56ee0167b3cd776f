package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	JWT          JWTConfig
	Redis        RedisConfig
	RabbitMQ     RabbitMQConfig
	Kafka        KafkaConfig
	Authz        AuthzConfig
	Notification NotificationConfig
	Cron         CronConfig
	Rules        RulesConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Port        int
	Env         string
	LogLevel    string
	LogFormat   string
	CORSOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration string
}

// RedisConfig enables the shared lock. An empty URL keeps locks in-process.
type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

// RabbitMQConfig enables external notification delivery. An empty URL logs
// deliveries instead.
type RabbitMQConfig struct {
	URL      string
	Exchange string
	Queue    string
}

// KafkaConfig enables the payroll audit stream. No brokers, no stream.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Timeout time.Duration
}

type AuthzConfig struct {
	Mode       string
	PolicyPath string
}

type NotificationConfig struct {
	WorkerCount   int
	BatchSize     int
	QueueSize     int
	FlushInterval time.Duration
	MaxAttempts   int
}

type CronConfig struct {
	Enabled           bool
	RecomputeInterval time.Duration
	RecomputeDays     int
	RetryInterval     time.Duration
	FinalizeInterval  time.Duration
	AutoFinalize      bool
}

type RulesConfig struct {
	SeedPath string
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	var (
		config = &Config{}
		p      parser
	)

	config.App = AppConfig{
		Port:        p.int("APP_PORT", 8080),
		Env:         getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		CORSOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS"),
	}

	config.Database = databaseFromEnv(&p)

	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: getEnv("JWT_ACCESS_EXPIRATION_TIME", "1h"),
	}

	config.Redis = RedisConfig{
		URL:     getEnv("REDIS_URL", ""),
		LockTTL: p.duration("LOCK_TTL", 30*time.Second),
	}

	config.RabbitMQ = RabbitMQConfig{
		URL:      getEnv("RABBITMQ_URL", ""),
		Exchange: getEnv("RABBITMQ_EXCHANGE", "hris.notifications"),
		Queue:    getEnv("RABBITMQ_QUEUE", "hris.notifications.delivery"),
	}

	config.Kafka = KafkaConfig{
		Brokers: getEnvSlice("KAFKA_BROKERS"),
		Topic:   getEnv("KAFKA_AUDIT_TOPIC", "payroll.run.audit"),
		Timeout: p.duration("KAFKA_TIMEOUT", 5*time.Second),
	}

	config.Authz = AuthzConfig{
		Mode:       getEnv("AUTHZ_MODE", "enforce"),
		PolicyPath: getEnv("AUTHZ_POLICY_PATH", ""),
	}

	config.Notification = NotificationConfig{
		WorkerCount:   p.int("NOTIFICATION_WORKERS", 2),
		BatchSize:     p.int("NOTIFICATION_BATCH_SIZE", 100),
		QueueSize:     p.int("NOTIFICATION_QUEUE_SIZE", 1000),
		FlushInterval: p.duration("NOTIFICATION_FLUSH_INTERVAL", 5*time.Second),
		MaxAttempts:   p.int("NOTIFICATION_MAX_ATTEMPTS", 5),
	}

	config.Cron = CronConfig{
		Enabled:           p.bool("CRON_ENABLED", true),
		RecomputeInterval: p.duration("CRON_RECOMPUTE_INTERVAL", time.Hour),
		RecomputeDays:     p.int("CRON_RECOMPUTE_DAYS", 2),
		RetryInterval:     p.duration("CRON_RETRY_INTERVAL", time.Minute),
		FinalizeInterval:  p.duration("CRON_FINALIZE_INTERVAL", 15*time.Minute),
		AutoFinalize:      p.bool("CRON_AUTO_FINALIZE", false),
	}

	config.Rules = RulesConfig{
		SeedPath: getEnv("RULES_SEED_PATH", "configs/rules.yaml"),
	}

	if p.err != nil {
		return nil, p.err
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func databaseFromEnv(p *parser) DatabaseConfig {
	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     p.int("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "hris_payroll"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		MaxConns: int32(p.int("DB_MAX_CONNS", 25)),
	}
}

// LoadDatabaseURL reads only the database settings. Used by cmd/migrate,
// which has no use for the service secrets.
func LoadDatabaseURL() (string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to load .env file: %w", err)
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url, nil
	}

	var p parser
	c := &Config{Database: databaseFromEnv(&p)}
	if p.err != nil {
		return "", p.err
	}
	if c.Database.Password == "" {
		return "", fmt.Errorf("DB_PASSWORD is required")
	}
	return c.DatabaseURL(), nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("APP_PORT must be between 1 and 65535")
	}
	switch strings.ToLower(c.Authz.Mode) {
	case "enforce", "shadow", "disabled":
	default:
		return fmt.Errorf("AUTHZ_MODE must be enforce, shadow or disabled")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.RabbitMQ.URL != "" && c.RabbitMQ.Exchange == "" {
		return fmt.Errorf("RABBITMQ_EXCHANGE is required when RABBITMQ_URL is set")
	}
	if c.Cron.RecomputeDays < 0 {
		return fmt.Errorf("CRON_RECOMPUTE_DAYS must not be negative")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(env string) []string {
	value := getEnv(env, "")
	if value == "" {
		return []string{}
	}
	var result []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}

// parser keeps the first conversion error so Load reports one message.
type parser struct {
	err error
}

func (p *parser) int(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return v
}

func (p *parser) bool(key string, fallback bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return v
}
