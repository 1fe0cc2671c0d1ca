package main

import (
	"context"
	"fmt"
	"log"

	"budgetwatch/internal/domain/account"
	"budgetwatch/internal/domain/institution"
	"budgetwatch/internal/domain/notification"
	"budgetwatch/internal/domain/openfinance"
	"budgetwatch/internal/domain/tracker"
	"budgetwatch/internal/infrastructure/amqp"
	"budgetwatch/internal/infrastructure/crypto"
	ofclient "budgetwatch/internal/infrastructure/openfinance"
	"budgetwatch/internal/infrastructure/postgres"
	"budgetwatch/internal/infrastructure/redis"
	"budgetwatch/internal/infrastructure/twilio"
	httphandlers "budgetwatch/internal/interfaces/http"
	"budgetwatch/internal/interfaces/scheduler"
	"budgetwatch/internal/shared/batch"
	"budgetwatch/internal/shared/config"
	"budgetwatch/internal/shared/messages"
	"budgetwatch/internal/shared/telemetry"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Domain services
	Links       *institution.Service
	Accounts    *account.Service
	Trackers    *tracker.Service
	AccountSync *openfinance.AccountSyncService

	Orchestrator *scheduler.Orchestrator
	Handlers     httphandlers.Handlers

	closers []func(context.Context) error
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	d := &Dependencies{}

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:      cfg.Telemetry.ServiceName,
		Environment:      cfg.Plaid.Environment,
		Timezone:         cfg.Scheduler.Timezone,
		Schedule:         cfg.Scheduler.Schedule,
		SchedulerEnabled: cfg.Scheduler.Enabled,
		OTLPEndpoint:     cfg.Telemetry.OTLPEndpoint,
		Traces:           cfg.Telemetry.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	d.closers = append(d.closers, shutdownTelemetry)

	// Connect to database
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		d.Close(ctx)
		return nil, err
	}
	d.DB = db
	d.closers = append(d.closers, func(context.Context) error { return db.Close() })
	log.Println("Connected to database")

	// Initialize encryptor
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		d.Close(ctx)
		return nil, err
	}

	msgs, err := messages.Load(cfg.Notify.MessagesFile)
	if err != nil {
		d.Close(ctx)
		return nil, err
	}

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db)
	linkRepo := postgres.NewInstitutionRepository(db, encryptor)
	accountRepo := postgres.NewAccountRepository(db)
	trackerRepo := postgres.NewTrackerRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	// Initialize external clients
	ofClient := ofclient.NewClient(cfg.Plaid.ClientID, cfg.Plaid.Secret, cfg.Plaid.Environment, cfg.Plaid.Timeout)
	notifier := twilio.NewNotifier(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber, cfg.Notify.DefaultCountryCode,
		cfg.Plaid.Timeout)

	pool := batch.NewPool(cfg.Scheduler.WorkerCount, cfg.Scheduler.JobDelay, cfg.Scheduler.JobTimeout)

	// Initialize domain services
	d.Accounts = account.NewService(accountRepo)
	d.Links = institution.NewService(linkRepo, accountRepo)
	d.AccountSync = openfinance.NewAccountSyncService(ofClient, d.Accounts, linkRepo, pool)
	d.Trackers = tracker.NewService(trackerRepo, accountRepo, linkRepo, tracker.NewSpendCalculator(ofClient), pool)
	d.Trackers.SetLocation(cfg.Scheduler.Location())
	dispatcher := notification.NewScheduler(trackerRepo, userRepo, accountRepo, notificationRepo,
		notifier, msgs, pool, cfg.Notify.SendAttempts)

	opts := scheduler.Options{Location: cfg.Scheduler.Location()}

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			d.Close(ctx)
			return nil, err
		}
		d.closers = append(d.closers, func(context.Context) error { return client.Close() })
		opts.Lock = redis.NewRunLock(client, cfg.Redis.LockTTL)
		log.Printf("Run lock enabled on %s", cfg.Redis.Addr)
	}

	if cfg.AMQP.Enabled {
		publisher, err := amqp.NewClient(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue)
		if err != nil {
			d.Close(ctx)
			return nil, err
		}
		d.closers = append(d.closers, func(context.Context) error { return publisher.Close() })
		opts.Publisher = publisher
		log.Printf("Run reports published to exchange %s", cfg.AMQP.Exchange)
	}

	d.Orchestrator = scheduler.NewOrchestrator(d.AccountSync, d.Trackers, dispatcher, opts)

	d.Handlers = httphandlers.Handlers{
		Runs:          httphandlers.NewRunHandler(d.Orchestrator),
		Trackers:      httphandlers.NewTrackerHandler(d.Trackers),
		Accounts:      httphandlers.NewAccountHandler(d.Accounts, d.Links),
		Notifications: httphandlers.NewNotificationHandler(notificationRepo),
		DB:            db,
	}

	return d, nil
}

// Close releases all resources held by dependencies, newest first.
func (d *Dependencies) Close(ctx context.Context) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}
	d.closers = nil
}
