package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/auth"
	"github.com/md-rashed-zaman/salonbook/libs/config"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/libs/grpcx"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/salonbook/libs/otel"
	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/appointments"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/consistency"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/guard"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/lock"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/slots"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
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

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{
		MaxConns:    cfg.DBMaxConns,
		LockTimeout: cfg.DBLockTimeout,
	})
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
	store := storage.NewPostgresStore(pool)

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var (
		locker  lock.Locker = lock.Noop{}
		limiter httpx.Limiter
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = rdb.Close() }()
		locker = lock.NewRedisLocker(rdb, lock.RedisConfig{TTL: cfg.LockTTL, Wait: cfg.LockWait})
		limiter = httpx.NewRedisLimiter(rdb, cfg.RateLimit, cfg.RateWindow, "ratelimit:public:")
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("redis schedule lock enabled", "addr", cfg.RedisAddr)
	} else {
		limiter = httpx.NewMemoryLimiter(cfg.RateLimit, cfg.RateWindow)
	}

	sinks := []notify.Sink{notify.LogSink{Logger: logger}}
	if cfg.KafkaBrokers != "" {
		ks := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() { _ = ks.Close() }()
		sinks = append(sinks, ks)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}
	if cfg.AMQPURL != "" {
		as := notify.NewAMQPSink(cfg.AMQPURL, cfg.AMQPQueue)
		defer func() { _ = as.Close() }()
		sinks = append(sinks, as)
	}
	dispatcher := notify.NewDispatcher(logger, notify.Config{
		QueueSize: cfg.NotifyQueueSize,
		Workers:   cfg.NotifyWorkers,
	}, sinks...)

	bookingGuard := guard.New(store, locker, dispatcher, logger, guard.Config{
		InitialStatus:  cfg.initialStatus(),
		IdempotencyTTL: cfg.IdempotencyTTL,
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
	})
	lifecycle := appointments.NewService(store, dispatcher, logger, cfg.CancellationCutoff)

	var keys auth.KeySource
	if cfg.JWKSURL != "" {
		keys = auth.NewJWKSClient(cfg.JWKSURL, cfg.JWKSMaxAge)
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Logger:       logger,
		Verifier:     auth.NewVerifier(cfg.JWTSecret, keys),
		Booking:      handlers.NewBookingHandler(bookingGuard, slots.NewFinder(store, cfg.SlotStep), logger, cfg.RetryAfter, cfg.Alternatives),
		Appointments: handlers.NewAppointmentHandler(store, lifecycle, logger),
		Deposits: handlers.NewDepositHandler(store, lifecycle, logger, handlers.DepositConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			SuccessURL:    cfg.DepositSuccessURL,
			CancelURL:     cfg.DepositCancelURL,
		}),
		Public: []httpx.Middleware{
			httpx.WithCORS(httpx.CORSPolicy{
				AllowedOrigins: config.List(cfg.CORSOrigins),
				AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
			}),
			httpx.RateLimit(limiter, logger, cfg.RateLimitFailOpen),
		},
		BodyLimitBytes: cfg.BodyLimitBytes,
		Timeout:        cfg.RequestTimeout,
	})

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/", router)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpcx.NewServer()
	healthSrv := grpcx.RegisterHealth(grpcSrv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	if cfg.ConsistencyEnabled {
		checker := consistency.NewChecker(store, logger, consistency.Config{
			Interval: cfg.ConsistencyInterval,
			LockKey:  cfg.ConsistencyLockKey,
		})
		g.Go(func() error { return checker.Run(gctx) })
	}
	g.Go(func() error {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		healthSrv.SetServingStatus(cfg.ServiceName, healthpb.HealthCheckResponse_SERVING)
		logger.Info("grpc health server starting", "addr", lis.Addr().String())
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSrv.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "err", err)
		}
		grpcSrv.GracefulStop()
		return nil
	})

	err = g.Wait()
	logger.Info("booking service stopped")
	return err
}
