package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/salonbook/libs/otel"
	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"github.com/md-rashed-zaman/salonbook/services/notification-service/internal/consumer"
	"github.com/md-rashed-zaman/salonbook/services/notification-service/internal/delivery"
	"github.com/md-rashed-zaman/salonbook/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/salonbook/services/notification-service/internal/inbox"
	"github.com/md-rashed-zaman/salonbook/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/salonbook/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := runtime.NewLoggerForEnv(cfg.ServiceName, cfg.Env)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: cfg.DBMaxConns})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		return err
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		applied, err := storage.Migrate(ctx, pool)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied", "count", len(applied), "files", applied)
	}

	loc, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		return err
	}
	processor := delivery.NewProcessor(
		email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom),
		sms.New(cfg.SMSProvider, cfg.SMSWebhookURL, cfg.SMSWebhookToken),
		storage.NewRepository(pool),
		logger,
		loc,
	)
	processor.FailSuffix = cfg.FailSuffix

	proc := consumer.NewProcessor(inbox.NewRepository(pool), processor.Process, logger, consumer.Config{
		MaxTries:       cfg.HandlerMaxTries,
		InitialBackoff: cfg.HandlerBackoff,
		RedeliverAfter: cfg.RedeliverAfter,
	})

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	g, gctx := errgroup.WithContext(ctx)
	if cfg.KafkaBrokers != "" {
		reader := consumer.NewKafkaReader(consumer.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.KafkaTopic,
		})
		kc := consumer.NewKafkaConsumer(reader, proc, logger)
		g.Go(func() error { return kc.Run(gctx) })
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
		logger.Info("kafka consumer enabled", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
	}
	if cfg.AMQPURL != "" {
		ac := consumer.NewAMQPConsumer(consumer.AMQPConfig{
			URL:      cfg.AMQPURL,
			Queue:    cfg.AMQPQueue,
			Tag:      cfg.ServiceName,
			Prefetch: cfg.AMQPPrefetch,
		}, proc, logger)
		g.Go(func() error { return ac.Run(gctx) })
		logger.Info("amqp consumer enabled", "queue", cfg.AMQPQueue)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "err", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("notification service stopped")
	return err
}
