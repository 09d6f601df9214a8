// Command tasks runs the batch jobs one-shot, for cron or manual use:
//
//	tasks sync [-days N]        pull the Doctolib window and fold it in
//	tasks bilans                run the overdue-assessment reconciliation
//	tasks reminders [-lead N]   queue reminders for upcoming appointments
//	tasks notifications         drain the pending notification queue
//	tasks all [-days N]         all of the above, in order
//	tasks create-admin -email E -password P [-name N]
//	                            seed an admin user if the email is free
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/kinebilan/kinebilan-backend/internal/appointments"
	"github.com/kinebilan/kinebilan-backend/internal/auth"
	"github.com/kinebilan/kinebilan-backend/internal/batchlock"
	"github.com/kinebilan/kinebilan-backend/internal/bilan"
	"github.com/kinebilan/kinebilan-backend/internal/config"
	"github.com/kinebilan/kinebilan-backend/internal/devices"
	"github.com/kinebilan/kinebilan-backend/internal/doctolib"
	"github.com/kinebilan/kinebilan-backend/internal/notifications"
	"github.com/kinebilan/kinebilan-backend/internal/patients"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	task := os.Args[1]

	fs := flag.NewFlagSet(task, flag.ExitOnError)
	days := fs.Int("days", 0, "sync window in days (default from SYNC_WINDOW_DAYS)")
	lead := fs.Int("lead", 0, "reminder lead days (default from REMINDER_LEAD_DAYS)")
	email := fs.String("email", "", "admin email (create-admin)")
	password := fs.String("password", "", "admin password (create-admin)")
	name := fs.String("name", "Admin", "admin display name (create-admin)")
	_ = fs.Parse(os.Args[2:])

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	if *days <= 0 {
		*days = cfg.SyncWindowDays
	}
	if *lead <= 0 {
		*lead = cfg.ReminderLeadDays
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if task == "create-admin" {
		if err := createAdmin(ctx, pool, *email, *password, *name); err != nil {
			logger.Error("task failed", "task", task, "error", err)
			os.Exit(1)
		}
		logger.Info("admin user ready", "email", *email)
		return
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() { _ = rdb.Close() }()

	app := newApp(ctx, cfg, pool, rdb, logger)

	var runErr error
	switch task {
	case "sync":
		runErr = app.runSync(ctx, *days)
	case "bilans":
		runErr = app.runBilans(ctx)
	case "reminders":
		runErr = app.runReminders(ctx, *lead)
	case "notifications":
		runErr = app.runNotifications(ctx)
	case "all":
		runErr = app.runAll(ctx, *days, *lead)
	default:
		usage()
		os.Exit(2)
	}
	if runErr != nil {
		logger.Error("task failed", "task", task, "error", runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tasks <sync|bilans|reminders|notifications|all|create-admin> [-days N] [-lead N] [-email E -password P]")
}

// createAdmin seeds an admin account. Idempotent: an existing user with
// the same email is left untouched.
func createAdmin(ctx context.Context, pool *pgxpool.Pool, email, password, name string) error {
	if email == "" || password == "" {
		return errors.New("create-admin: -email and -password are required")
	}
	store := auth.NewStore(pool)
	if _, err := store.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, auth.ErrNotFound) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("create-admin: hash password: %w", err)
	}
	return store.Create(ctx, &auth.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
		Role:         auth.RoleAdmin,
	})
}

type app struct {
	appointmentStore    *appointments.Store
	notificationService *notifications.Service
	processor           *notifications.Processor
	reconciler          *bilan.Reconciler
	syncService         *doctolib.SyncService
	logger              *logging.Logger
}

func newApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, logger *logging.Logger) *app {
	lock := batchlock.New(rdb, logger)

	patientStore := patients.NewStore(pool)
	appointmentStore := appointments.NewStore(pool)
	notificationStore := notifications.NewStore(pool)
	deviceStore := devices.NewStore(pool)

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

	client := doctolib.NewClient(cfg.DoctolibSidecarURL, cfg.DoctolibEmail, cfg.DoctolibPassword)

	return &app{
		appointmentStore:    appointmentStore,
		notificationService: notifications.NewService(notificationStore, patientStore, appointmentStore, logger),
		processor:           notifications.NewProcessor(notificationStore, patientStore, senders, cfg.NotifyWorkers, nil, logger),
		reconciler: bilan.NewReconciler(pool, patientStore, appointmentStore, notificationStore, lock,
			cfg.BilanMaxDays, nil, logger),
		syncService: doctolib.NewSyncService(client, pool, patientStore, appointmentStore, notificationStore, lock,
			doctolib.SyncConfig{
				MaxDays:    cfg.BilanMaxDays,
				Keywords:   cfg.BilanKeywords,
				AutoCancel: cfg.AutoCancelEnabled,
			}, nil, logger),
		logger: logger,
	}
}

func (a *app) runSync(ctx context.Context, days int) error {
	result, err := a.syncService.Sync(ctx, days)
	if err != nil {
		return err
	}
	a.logger.Info("sync complete",
		"total", result.Total,
		"new_appointments", result.NewAppointments,
		"updated_appointments", result.UpdatedAppointments,
		"new_patients", result.NewPatients,
		"cancelled", result.CancelledAppointments,
		"errors", len(result.Errors),
	)
	return nil
}

func (a *app) runBilans(ctx context.Context) error {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	result, err := a.reconciler.Run(ctx, today)
	if err != nil {
		return err
	}
	a.logger.Info("bilan reconciliation complete",
		"scanned", result.PatientsScanned,
		"due", result.PatientsDue,
		"promotions", result.Promotions,
		"notifications", result.NotificationsCreated,
	)
	return nil
}

// runReminders queues a reminder for every appointment scheduled lead days
// from now, then drains the queue.
func (a *app) runReminders(ctx context.Context, lead int) error {
	target := time.Now().UTC().AddDate(0, 0, lead)
	list, err := a.appointmentStore.ScheduledOn(ctx, target)
	if err != nil {
		return err
	}
	queued := 0
	for _, appt := range list {
		if _, err := a.notificationService.SendAppointmentReminder(ctx, appt.ID, "", nil); err != nil {
			a.logger.Error("reminder skipped", "appointment_id", appt.ID, "error", err)
			continue
		}
		queued++
	}
	a.logger.Info("reminders queued", "date", target.Format("2006-01-02"), "appointments", len(list), "queued", queued)
	return a.runNotifications(ctx)
}

func (a *app) runNotifications(ctx context.Context) error {
	result, err := a.processor.ProcessPending(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("notification queue drained",
		"processed", result.Processed,
		"sent", result.Sent,
		"failed", result.Failed,
	)
	return nil
}

func (a *app) runAll(ctx context.Context, days, lead int) error {
	if err := a.runSync(ctx, days); err != nil {
		return err
	}
	if err := a.runBilans(ctx); err != nil {
		return err
	}
	return a.runReminders(ctx, lead)
}
