package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/fjod/commerce-core/internal/auth"
	"github.com/fjod/commerce-core/internal/domain"
	"github.com/fjod/commerce-core/internal/orders/repository"
	"github.com/shopspring/decimal"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"commerce"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort           string        `env:"HTTP_PORT" envDefault:"8080"`
	GRPCPort           string        `env:"GRPC_PORT" envDefault:"50051"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxRequestBodySize int64         `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"commerce"`

	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	CartCacheTTL  time.Duration `env:"CART_CACHE_TTL" envDefault:"15m"`

	DBHost           string `env:"DB_HOST" envDefault:"localhost"`
	DBPort           int    `env:"DB_PORT" envDefault:"5432"`
	DBUser           string `env:"DB_USER" envDefault:"postgres"`
	DBPassword       string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName           string `env:"DB_NAME" envDefault:"commerce"`
	OrderMigrations  string `env:"ORDER_MIGRATIONS_PATH" envDefault:"internal/orders/repository/migrations"`
	CatalogDBPath    string `env:"CATALOG_DB_PATH" envDefault:"catalog.db"`
	CatalogMigration string `env:"CATALOG_MIGRATIONS_PATH" envDefault:"internal/catalog/migrations"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`

	FeeRateRaw         string        `env:"FEE_RATE" envDefault:"0.05"`
	PaymentEnvironment string        `env:"PAYMENT_ENVIRONMENT" envDefault:"sandbox"`
	PaymentAPIURL      string        `env:"PAYMENT_API_URL" envDefault:"http://localhost:12111"`
	PaymentAPIKey      string        `env:"PAYMENT_API_KEY"`
	PaymentTimeout     time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"10s"`

	CartMaxRetries        int           `env:"CART_MAX_RETRIES" envDefault:"5"`
	TransitionMaxRetries  int           `env:"TRANSITION_MAX_RETRIES" envDefault:"3"`
	HydrationConcurrency  int           `env:"HYDRATION_CONCURRENCY" envDefault:"8"`
	WebhookBufferSize     int           `env:"WEBHOOK_BUFFER_SIZE" envDefault:"1024"`
	WebhookWorkers        int           `env:"WEBHOOK_WORKERS" envDefault:"4"`
	WebhookMaxAttempts    int           `env:"WEBHOOK_MAX_ATTEMPTS" envDefault:"5"`
	WebhookDeliveryGroup  string        `env:"WEBHOOK_DELIVERY_GROUP" envDefault:"commerce-webhook-delivery"`
	WebhookEnqueueTimeout time.Duration `env:"WEBHOOK_ENQUEUE_TIMEOUT" envDefault:"2s"`
	WebhookRequestTimeout time.Duration `env:"WEBHOOK_REQUEST_TIMEOUT" envDefault:"10s"`

	APIKeys string `env:"API_KEYS"`

	// derived in Load
	FeeRate     decimal.Decimal           `env:"-"`
	Environment domain.PaymentEnvironment `env:"-"`
	Gate        *auth.StaticGate          `env:"-"`
}

// Load reads the environment and validates the derived values.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	rate, err := decimal.NewFromString(strings.TrimSpace(c.FeeRateRaw))
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("FEE_RATE: %w", err))
	case rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)):
		errs = append(errs, fmt.Errorf("FEE_RATE must be within [0, 1], got %s", rate))
	default:
		c.FeeRate = rate
	}

	c.Environment = domain.PaymentEnvironment(strings.ToLower(strings.TrimSpace(c.PaymentEnvironment)))
	if !c.Environment.Valid() {
		errs = append(errs, fmt.Errorf("PAYMENT_ENVIRONMENT must be live or sandbox, got %q", c.PaymentEnvironment))
	}

	gate, err := auth.ParseStaticGate(c.APIKeys)
	if err != nil {
		errs = append(errs, fmt.Errorf("API_KEYS: %w", err))
	} else {
		c.Gate = gate
	}

	if len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required"))
	}
	if c.CartMaxRetries < 1 || c.TransitionMaxRetries < 1 {
		errs = append(errs, errors.New("retry limits must be at least 1"))
	}

	return errors.Join(errs...)
}

func (c *Config) OrdersCredentials() *repository.Credentials {
	return &repository.Credentials{
		Host:              c.DBHost,
		Port:              c.DBPort,
		User:              c.DBUser,
		Password:          c.DBPassword,
		DBName:            c.DBName,
		MigrationsDirPath: c.OrderMigrations,
	}
}
