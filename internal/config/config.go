package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	Payment   PaymentConfig
	Inventory InventoryConfig
	LogLevel  string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimit    int
}

type DatabaseConfig struct {
	// Driver is "mysql" or "memory".
	Driver       string
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type KafkaConfig struct {
	Brokers       []string
	GroupID       string
	MockMode      bool
	ConsumeTopics []string
}

type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	IdempotencyTTL time.Duration
}

type PaymentConfig struct {
	// Provider is "paystack" or "stripe".
	Provider         string
	SecretKey        string
	WebhookSecret    string
	BaseURL          string
	CallbackURL      string
	Currency         string
	CurrencyExponent int32
	Timeout          time.Duration
}

type InventoryConfig struct {
	ReconcileInterval time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8085"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", "30s"),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", "60s"),
			RateLimit:    getEnvAsInt("RATE_LIMIT_RPS", 100),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "mysql"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "3306"),
			Username:     getEnv("DB_USER", "root"),
			Password:     getEnv("DB_PASS", "password"),
			Database:     getEnv("DB_NAME", "ticket_checkout"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", "5m"),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:29092"}),
			GroupID:       getEnv("KAFKA_GROUP_ID", "ticket-checkout"),
			MockMode:      getEnvAsBool("KAFKA_MOCK_MODE", true),
			ConsumeTopics: getEnvAsSlice("KAFKA_CONSUME_TOPICS", []string{"event-lifecycle", "payment-webhooks"}),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			IdempotencyTTL: getEnvAsDuration("CHECKOUT_IDEMPOTENCY_TTL", "24h"),
		},
		Payment: PaymentConfig{
			Provider:         getEnv("PAYMENT_PROVIDER", "paystack"),
			SecretKey:        getEnv("PAYMENT_SECRET_KEY", ""),
			WebhookSecret:    getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			BaseURL:          getEnv("PAYMENT_BASE_URL", "https://api.paystack.co"),
			CallbackURL:      getEnv("PAYMENT_CALLBACK_URL", ""),
			Currency:         getEnv("PAYMENT_CURRENCY", "NGN"),
			CurrencyExponent: int32(getEnvAsInt("PAYMENT_CURRENCY_EXPONENT", 2)),
			Timeout:          getEnvAsDuration("PAYMENT_TIMEOUT", "10s"),
		},
		Inventory: InventoryConfig{
			ReconcileInterval: getEnvAsDuration("INVENTORY_RECONCILE_INTERVAL", "0s"),
		},
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}
}

// WebhookSigningSecret is the key used to verify webhook signatures.
// Paystack signs with the API secret key; Stripe issues a separate endpoint secret.
func (p PaymentConfig) WebhookSigningSecret() string {
	if p.WebhookSecret != "" {
		return p.WebhookSecret
	}
	return p.SecretKey
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
