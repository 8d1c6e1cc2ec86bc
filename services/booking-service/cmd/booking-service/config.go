package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/config"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" env-default:"booking-service"`
	Env         string `env:"APP_ENV" env-default:"prod"`
	Port        string `env:"PORT" env-default:"8083"`
	GRPCPort    string `env:"GRPC_PORT" env-default:"9093"`

	DatabaseURL    string        `env:"DATABASE_URL" env-required:"true"`
	DBMaxConns     int32         `env:"DB_MAX_CONNS" env-default:"10"`
	DBLockTimeout  time.Duration `env:"DB_LOCK_TIMEOUT" env-default:"2s"`
	MigrateOnStart bool          `env:"MIGRATE_ON_START" env-default:"false"`

	InitialStatus      string        `env:"BOOKING_INITIAL_STATUS" env-default:"confirmed"`
	IdempotencyTTL     time.Duration `env:"BOOKING_IDEMPOTENCY_TTL" env-default:"24h"`
	MaxAttempts        uint          `env:"BOOKING_MAX_ATTEMPTS" env-default:"4"`
	InitialBackoff     time.Duration `env:"BOOKING_INITIAL_BACKOFF" env-default:"25ms"`
	MaxBackoff         time.Duration `env:"BOOKING_MAX_BACKOFF" env-default:"500ms"`
	CancellationCutoff time.Duration `env:"CANCELLATION_CUTOFF" env-default:"24h"`
	SlotStep           time.Duration `env:"SLOT_STEP" env-default:"15m"`
	Alternatives       int           `env:"BOOKING_ALTERNATIVES" env-default:"3"`
	RetryAfter         time.Duration `env:"BOOKING_RETRY_AFTER" env-default:"2s"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	LockTTL       time.Duration `env:"BOOKING_LOCK_TTL" env-default:"10s"`
	LockWait      time.Duration `env:"BOOKING_LOCK_WAIT" env-default:"1s"`

	KafkaBrokers    string `env:"KAFKA_BROKERS"`
	KafkaTopic      string `env:"KAFKA_NOTIFY_TOPIC" env-default:"booking.appointments"`
	AMQPURL         string `env:"AMQP_URL"`
	AMQPQueue       string `env:"AMQP_NOTIFY_QUEUE" env-default:"booking.appointments"`
	NotifyQueueSize int    `env:"NOTIFY_QUEUE_SIZE" env-default:"256"`
	NotifyWorkers   int    `env:"NOTIFY_WORKERS" env-default:"2"`

	JWTSecret  string        `env:"JWT_SECRET" env-required:"true"`
	JWKSURL    string        `env:"JWKS_URL"`
	JWKSMaxAge time.Duration `env:"JWKS_CACHE_TTL" env-default:"10m"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	DepositSuccessURL   string `env:"DEPOSIT_SUCCESS_URL" env-default:"http://localhost:3000/booking/paid"`
	DepositCancelURL    string `env:"DEPOSIT_CANCEL_URL" env-default:"http://localhost:3000/booking/cancelled"`

	RateLimit         int           `env:"PUBLIC_RATE_LIMIT" env-default:"60"`
	RateWindow        time.Duration `env:"PUBLIC_RATE_WINDOW" env-default:"1m"`
	RateLimitFailOpen bool          `env:"PUBLIC_RATE_LIMIT_FAIL_OPEN" env-default:"true"`
	CORSOrigins       string        `env:"CORS_ALLOWED_ORIGINS"`
	BodyLimitBytes    int64         `env:"HTTP_BODY_LIMIT_BYTES" env-default:"1048576"`
	RequestTimeout    time.Duration `env:"HTTP_REQUEST_TIMEOUT" env-default:"15s"`

	ConsistencyEnabled  bool          `env:"CONSISTENCY_CHECK_ENABLED" env-default:"true"`
	ConsistencyInterval time.Duration `env:"CONSISTENCY_CHECK_INTERVAL" env-default:"5m"`
	ConsistencyLockKey  int64         `env:"CONSISTENCY_CHECK_LOCK_KEY" env-default:"7301002"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(config.String("DOTENV_FILE", ".env"), &cfg); err != nil {
		return cfg, err
	}
	if _, ok := model.ParseStatus(strings.ToLower(strings.TrimSpace(cfg.InitialStatus))); !ok {
		return cfg, fmt.Errorf("BOOKING_INITIAL_STATUS: unknown status %q", cfg.InitialStatus)
	}
	if st := cfg.initialStatus(); st != model.StatusPending && st != model.StatusConfirmed {
		return cfg, fmt.Errorf("BOOKING_INITIAL_STATUS must be pending or confirmed, got %q", cfg.InitialStatus)
	}
	return cfg, nil
}

func (c Config) initialStatus() model.Status {
	st, _ := model.ParseStatus(strings.ToLower(strings.TrimSpace(c.InitialStatus)))
	return st
}
