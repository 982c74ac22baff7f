package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	gormlogger "gorm.io/gorm/logger"

	"concierge-server/internal/config"
	"concierge-server/internal/domain/dialog"
	"concierge-server/internal/domain/retry"
	"concierge-server/internal/infrastructure/alerting"
	"concierge-server/internal/infrastructure/availability"
	"concierge-server/internal/infrastructure/channels"
	"concierge-server/internal/infrastructure/database"
	"concierge-server/internal/infrastructure/logger"
	"concierge-server/internal/infrastructure/observability"
	"concierge-server/internal/infrastructure/queue"
	conversationrepo "concierge-server/internal/infrastructure/repository/conversation"
	settingsrepo "concierge-server/internal/infrastructure/repository/settings"
	"concierge-server/internal/infrastructure/responder"
	"concierge-server/internal/interfaces/httpserver"
	"concierge-server/internal/realtime"
	"concierge-server/internal/worker"
)

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	db, err := database.Connect(database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	if err := database.AutoMigrate(ctx, db, log); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	conversationRepository := conversationrepo.NewRepository(db)
	settingsRepository := settingsrepo.NewRepository(db)
	taskQueue := queue.NewPostgresQueue(db, queue.Config{
		MaxAttempts:       cfg.TaskMaxAttempts,
		VisibilityTimeout: cfg.VisibilityTimeout,
	}, log)

	alerter := alerting.NewNotifier(cfg.OperatorAlertURL, log)

	gateway := responder.NewGateway(responder.Config{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		Model:        cfg.OpenAIModel,
		SystemPrompt: cfg.ResponderSystem,
		HistoryTurns: cfg.HistoryTurns,
		RetryPolicy:  retry.ResponderPolicy(),
		Breaker: responder.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerFailures,
			Cooldown:         cfg.BreakerCooldown,
		},
	}, alerter, log)

	var checker availability.Checker
	if cfg.AvailabilityURL != "" {
		checker = availability.NewClient(cfg.AvailabilityURL, cfg.AvailabilityTimeout, log)
	}

	hub := realtime.NewHub(log)

	dialogService := dialog.NewService(
		dialog.Config{Locale: cfg.ResponderLocale, HistoryTurns: cfg.HistoryTurns},
		conversationRepository,
		settingsRepository,
		gateway,
		checker,
		taskQueue,
		hub,
		log,
	)
	hub.SetCommander(dialogService)

	registry := channels.NewRegistry(
		channels.NewWhatsAppAdapter(channels.WhatsAppConfig{
			AccessToken:   cfg.WhatsAppToken,
			PhoneNumberID: cfg.WhatsAppPhoneID,
			VerifyToken:   cfg.WhatsAppVerifyToken,
			AppSecret:     cfg.WhatsAppAppSecret,
		}, log),
		channels.NewTelegramAdapter(channels.TelegramConfig{
			BotToken:    cfg.TelegramBotToken,
			SecretToken: cfg.TelegramSecretToken,
		}, log),
		channels.NewSMSAdapter(channels.SMSConfig{
			AccountSID: cfg.SMSAccountSID,
			AuthToken:  cfg.SMSAuthToken,
			FromNumber: cfg.SMSFromNumber,
		}, log),
		channels.NewDashboardAdapter(hub, log),
	)

	pool := worker.NewPool(worker.Config{
		Workers:         cfg.WorkerCount,
		TaskTimeout:     cfg.TaskTimeout,
		TaskMaxAttempts: cfg.TaskMaxAttempts,
	}, taskQueue, dialogService, registry, alerter, hub, log)

	server := httpserver.New(cfg, db, registry, taskQueue, dialogService, conversationRepository, settingsRepository, hub, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		hub.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("service stopped with error")
	}
	log.Info().Msg("service exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
