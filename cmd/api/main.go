package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/internal/api/router"
	"github.com/wolfman30/clinic-booking/internal/app/bootstrap"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/blocks"
	"github.com/wolfman30/clinic-booking/internal/booking"
	"github.com/wolfman30/clinic-booking/internal/catalog"
	"github.com/wolfman30/clinic-booking/internal/channels/messenger"
	"github.com/wolfman30/clinic-booking/internal/clinic"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/dispatch"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/locks"
	"github.com/wolfman30/clinic-booking/internal/notify"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/proofs"
	"github.com/wolfman30/clinic-booking/internal/sessions"
	"github.com/wolfman30/clinic-booking/internal/slots"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting clinic-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(cfg *appconfig.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	profile, err := clinic.LoadProfile(cfg.ClinicProfilePath)
	if err != nil {
		return err
	}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		logger.Warn("redis unavailable: actor locks are process-local and webhook dedupe is off")
	}

	metricsHandler, bookingMetrics := setupMetrics()
	notifier, provider, reason := bootstrap.BuildNotifier(cfg, bookingMetrics, logger)
	logger.Info("outbound notifier configured", "provider", provider, "reason", reason)

	awsCfg := loadAWS(ctx, cfg, logger)
	emailSender, emailProvider := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	logger.Info("staff alert email configured", "provider", emailProvider, "recipients", len(cfg.StaffAlertEmails))
	staffAlerts := notify.NewService(emailSender, cfg.StaffAlertEmails, profile.Name, cfg.NotifyTimeout, logger)

	// Storage
	appointmentRepo := appointments.NewRepository(pool)
	blockRepo := blocks.NewRepository(pool)
	catalogRepo := catalog.NewRepository(pool)
	sessionStore := sessions.NewPostgresStore(pool)

	locker := buildLocker(redisClient, cfg, logger)

	// Domain
	freeSlots := slots.NewService(profile.Slots(), appointmentRepo, blockRepo, cfg.AvailabilityTimeout, profile.Location(), logger)
	manager := appointments.NewManager(appointmentRepo, notifier, logger,
		appointments.WithSessionReleaser(booking.NewSessionReleaser(sessionStore, locker, logger)),
		appointments.WithSlots(profile.Slots()),
		appointments.WithLocation(profile.Location()),
		appointments.WithMetrics(bookingMetrics),
	)

	machineCfg := booking.MachineConfig{
		Catalog:      catalogRepo,
		Availability: freeSlots,
		Appointments: manager,
		Profile:      profile,
		Alerts:       staffAlerts,
		Logger:       logger,
	}
	if archiver := buildArchiver(cfg, awsCfg, logger); archiver != nil {
		machineCfg.Archiver = archiver
	}
	machine := booking.NewMachine(machineCfg)

	dispatchCfg := dispatch.Config{
		Sessions:    sessionStore,
		Machine:     machine,
		Locker:      locker,
		Notifier:    notifier,
		Concurrency: cfg.DispatchConcurrency,
		TurnTimeout: cfg.TurnTimeout,
		Metrics:     bookingMetrics,
		Logger:      logger,
	}
	if redisClient != nil {
		dispatchCfg.Deduper = dispatch.NewRedisDeduper(redisClient, "clinic:mid:", cfg.DedupeTTL, logger)
	}
	dispatcher := dispatch.New(dispatchCfg)

	// HTTP
	webhook := messenger.NewWebhookHandler(messenger.WebhookConfig{
		VerifyToken: cfg.VerifyToken,
		AppSecret:   cfg.AppSecret,
		Location:    profile.Location(),
		Timeout:     3 * cfg.TurnTimeout,
		Metrics:     bookingMetrics,
		Logger:      logger,
	}, dispatcher)
	if cfg.AppSecret == "" {
		logger.Warn("APP_SECRET not set: webhook signatures are not verified")
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst)
	go limiter.Run(ctx)

	handler := router.New(&router.Config{
		Logger:             logger,
		Webhook:            webhook,
		WebhookLimiter:     limiter,
		FreeTimes:          slots.NewHandler(freeSlots, logger),
		Appointments:       appointments.NewHandler(manager, logger),
		Blocks:             blocks.NewHandler(blockRepo, profile.Location(), logger),
		Services:           catalog.NewHandler(catalogRepo, logger),
		Clinic:             clinic.NewHandler(profile, logger),
		StaffJWTSecret:     cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ReadinessChecks:    readinessChecks(pool, redisClient),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Drain background work before the pool and Redis close.
	webhook.Wait()
	manager.Wait()
	staffAlerts.Wait()

	logger.Info("server stopped")
	return nil
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewBookingMetrics(reg)
}

func buildLocker(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) locks.Locker {
	local := locks.NewLocalLocker()
	if redisClient == nil {
		return local
	}
	// The local lock queues same-process turns; Redis covers other replicas.
	return locks.Chain{local, locks.NewRedisLocker(redisClient, "clinic:actor:", cfg.ActorLockTTL, logger)}
}

func loadAWS(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *aws.Config {
	if cfg.ProofBucket == "" && cfg.EmailProvider != "ses" {
		return nil
	}
	awsCfg, err := bootstrap.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Warn("aws config unavailable, proof archive and SES disabled", "error", err)
		return nil
	}
	return &awsCfg
}

func buildArchiver(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) *proofs.Archiver {
	if awsCfg == nil || cfg.ProofBucket == "" {
		return nil
	}
	client := s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
		// LocalStack and MinIO need path-style addressing.
		o.UsePathStyle = cfg.AWSEndpointOverride != ""
	})
	return proofs.NewArchiver(client, cfg.ProofBucket, logger)
}

func readinessChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]router.Check {
	checks := map[string]router.Check{
		"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}
