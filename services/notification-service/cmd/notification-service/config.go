package main

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/config"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" env-default:"notification-service"`
	Env         string `env:"APP_ENV" env-default:"prod"`
	Port        string `env:"PORT" env-default:"8085"`

	DatabaseURL    string `env:"DATABASE_URL" env-required:"true"`
	DBMaxConns     int32  `env:"DB_MAX_CONNS" env-default:"5"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" env-default:"false"`

	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaGroupID string `env:"KAFKA_GROUP_ID" env-default:"notification-service"`
	KafkaTopic   string `env:"KAFKA_CONSUME_TOPIC" env-default:"booking.appointments"`
	AMQPURL      string `env:"AMQP_URL"`
	AMQPQueue    string `env:"AMQP_NOTIFY_QUEUE" env-default:"booking.appointments"`
	AMQPPrefetch int    `env:"AMQP_PREFETCH" env-default:"16"`

	HandlerMaxTries uint          `env:"NOTIFY_HANDLER_MAX_TRIES" env-default:"3"`
	HandlerBackoff  time.Duration `env:"NOTIFY_HANDLER_BACKOFF" env-default:"500ms"`
	RedeliverAfter  time.Duration `env:"NOTIFY_REDELIVER_AFTER" env-default:"5s"`

	SMTPHost string `env:"SMTP_HOST" env-default:"mailpit"`
	SMTPPort string `env:"SMTP_PORT" env-default:"1025"`
	SMTPFrom string `env:"SMTP_FROM" env-default:"no-reply@salonbook.local"`

	SMSProvider     string `env:"SMS_PROVIDER" env-default:"noop"`
	SMSWebhookURL   string `env:"SMS_WEBHOOK_URL"`
	SMSWebhookToken string `env:"SMS_WEBHOOK_TOKEN"`

	DisplayTimezone string `env:"NOTIFY_TIMEZONE" env-default:"UTC"`
	FailSuffix      string `env:"NOTIFICATION_FAIL_SUFFIX"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(config.String("DOTENV_FILE", ".env"), &cfg); err != nil {
		return cfg, err
	}
	if cfg.KafkaBrokers == "" && cfg.AMQPURL == "" {
		return cfg, fmt.Errorf("one of KAFKA_BROKERS or AMQP_URL is required")
	}
	if _, err := time.LoadLocation(cfg.DisplayTimezone); err != nil {
		return cfg, fmt.Errorf("NOTIFY_TIMEZONE: %w", err)
	}
	return cfg, nil
}
