package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/kinebilan/kinebilan-backend/internal/api/router"
	"github.com/kinebilan/kinebilan-backend/internal/appointments"
	"github.com/kinebilan/kinebilan-backend/internal/auth"
	"github.com/kinebilan/kinebilan-backend/internal/batchlock"
	"github.com/kinebilan/kinebilan-backend/internal/bilan"
	"github.com/kinebilan/kinebilan-backend/internal/config"
	"github.com/kinebilan/kinebilan-backend/internal/devices"
	"github.com/kinebilan/kinebilan-backend/internal/doctolib"
	"github.com/kinebilan/kinebilan-backend/internal/notifications"
	"github.com/kinebilan/kinebilan-backend/internal/observability/metrics"
	"github.com/kinebilan/kinebilan-backend/internal/patients"
	"github.com/kinebilan/kinebilan-backend/internal/reports"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting kinebilan API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() { _ = rdb.Close() }()
	lock := batchlock.New(rdb, logger)

	batchMetrics := metrics.NewBatchMetrics(prometheus.DefaultRegisterer)

	// Stores
	userStore := auth.NewStore(pool)
	patientStore := patients.NewStore(pool)
	appointmentStore := appointments.NewStore(pool)
	notificationStore := notifications.NewStore(pool)
	deviceStore := devices.NewStore(pool)
	reportStore := reports.NewStore(pool)

	// Delivery channels. A sender whose credentials are missing is disabled
	// at construction and reports the reason per notification.
	senders := map[notifications.Channel]notifications.Sender{
		notifications.ChannelEmail: notifications.NewEmailSender(notifications.EmailConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger),
		notifications.ChannelSMS: notifications.NewSMSSender(notifications.SMSConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioFromNumber,
		}, logger),
		notifications.ChannelPush: notifications.NewPushSender(ctx, cfg.FirebaseCredentialsPath, deviceStore, logger),
	}

	// Services
	appointmentService := appointments.NewService(pool, appointmentStore, patientStore, logger)
	notificationService := notifications.NewService(notificationStore, patientStore, appointmentStore, logger)
	processor := notifications.NewProcessor(notificationStore, patientStore, senders, cfg.NotifyWorkers, batchMetrics, logger)

	reconciler := bilan.NewReconciler(pool, patientStore, appointmentStore, notificationStore, lock,
		cfg.BilanMaxDays, batchMetrics, logger)

	doctolibClient := doctolib.NewClient(cfg.DoctolibSidecarURL, cfg.DoctolibEmail, cfg.DoctolibPassword)
	syncService := doctolib.NewSyncService(doctolibClient, pool, patientStore, appointmentStore,
		notificationStore, lock, doctolib.SyncConfig{
			MaxDays:    cfg.BilanMaxDays,
			Keywords:   cfg.BilanKeywords,
			AutoCancel: cfg.AutoCancelEnabled,
		}, batchMetrics, logger)

	if cfg.DoctolibSidecarURL != "" {
		syncer, err := doctolib.NewSyncer(doctolib.SyncerConfig{
			Service:    syncService,
			Interval:   cfg.SyncInterval,
			WindowDays: cfg.SyncWindowDays,
			Logger:     logger,
		})
		if err != nil {
			logger.Error("failed to create syncer", "error", err)
			os.Exit(1)
		}
		go syncer.Start(ctx)
	} else {
		logger.Info("doctolib sidecar not configured, periodic sync disabled")
	}

	if cfg.NotifyProcessImmediately {
		go drainNotifications(ctx, processor, logger)
	}

	// Handlers
	routerCfg := &router.Config{
		Logger:               logger,
		AuthHandler:          auth.NewHandler(userStore, cfg.AdminJWTSecret, logger),
		PatientsHandler:      patients.NewHandler(patientStore, logger),
		AppointmentsHandler:  appointments.NewHandler(appointmentStore, appointmentService, logger),
		NotificationsHandler: notifications.NewHandler(notificationService, notificationStore, processor, logger),
		DevicesHandler:       devices.NewHandler(deviceStore, logger),
		ReportsHandler:       reports.NewHandler(reportStore, cfg.BilanMaxDays, logger),
		AdminHandler:         router.NewAdminHandler(syncService, reconciler, logger),
		MetricsHandler:       promhttp.Handler(),
		AdminJWTSecret:       cfg.AdminJWTSecret,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// drainNotifications dispatches pending notifications shortly after they
// are queued, so callers do not have to hit /notifications/process.
func drainNotifications(ctx context.Context, processor *notifications.Processor, logger *logging.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := processor.ProcessPending(ctx); err != nil {
				logger.Error("notification drain failed", "error", err)
			}
		}
	}
}
