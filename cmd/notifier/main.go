package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bodybiz/backend/auth"
	"github.com/bodybiz/backend/client"
	"github.com/bodybiz/backend/db"
	"github.com/bodybiz/backend/notification"
	"github.com/bodybiz/backend/program"
	"github.com/bodybiz/backend/purchase"
	"github.com/bodybiz/backend/team"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	var logger *zap.Logger
	var dotFile string
	var err error

	// Determine running environment and initialize structural logger
	env := os.Getenv("API_ENV")
	environment := auth.EnvDevelopment
	if "production" == env {
		dotFile = ".env.production"
		environment = auth.EnvProduction
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	logger = logger.With(zap.String("Version", Version))

	// Initialize sentry for error reporting
	if err := sentry.Init(sentry.ClientOptions{
		Environment: string(environment),
		Debug:       environment == auth.EnvDevelopment,
	}); err != nil {
		log.Fatal("Cannot initialize sentry",
			zap.Error(err),
		)
	}
	defer sentry.Flush(time.Second * 2)

	// Attach sentry to zap so we can do automatic error capturing
	cfg := zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": "notifier",
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	logger = zapsentry.AttachCoreToLogger(core, logger)

	defer logger.Sync()

	// Load configurations from dotFile
	if err := godotenv.Load(dotFile); err != nil {
		logger.Fatal("Cannot load configurations from .env",
			zap.Error(err),
		)
	}

	// Initialize backend connections
	db, err := db.New(logger, os.Getenv("POSTGRES_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Postgres",
			zap.Error(err),
		)
	}

	amqpBroker, err := notification.NewBroker(logger, os.Getenv("AMQP_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Broker",
			zap.Error(err),
		)
	}
	defer amqpBroker.Close()

	clientManager, err := client.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize ClientManager",
			zap.Error(err),
		)
	}

	teamManager, err := team.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize TeamManager",
			zap.Error(err),
		)
	}

	purchaseManager, err := purchase.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize PurchaseManager",
			zap.Error(err),
		)
	}

	programManager, err := program.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize ProgramManager",
			zap.Error(err),
		)
	}

	mailer, err := notification.NewMailer(notification.MailerOptions{
		APIKey: os.Getenv("RESEND_API_KEY"),
		From:   os.Getenv("MAIL_FROM"),
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Mailer",
			zap.Error(err),
		)
	}

	dispatcher, err := notification.NewDispatcher(notification.DispatcherOptions{
		ClientManager:   clientManager,
		TeamManager:     teamManager,
		PurchaseManager: purchaseManager,
		ProgramManager:  programManager,
		Mailer:          mailer,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Dispatcher",
			zap.Error(err),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := amqpBroker.Receive(ctx)
	if err != nil {
		logger.Fatal("Cannot consume from Broker",
			zap.Error(err),
		)
	}

	go func() {
		for ev := range events {
			dispatcher.Handle(ctx, ev)
		}
	}()

	logger.Info("Notifier running")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	logger.Info("Notifier shutting down")
}
