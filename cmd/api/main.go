package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/bodybiz/backend/audit"
	"github.com/bodybiz/backend/auth"
	"github.com/bodybiz/backend/client"
	"github.com/bodybiz/backend/db"
	"github.com/bodybiz/backend/external"
	"github.com/bodybiz/backend/notification"
	"github.com/bodybiz/backend/payment"
	"github.com/bodybiz/backend/program"
	"github.com/bodybiz/backend/purchase"
	"github.com/bodybiz/backend/report"
	"github.com/bodybiz/backend/team"
	"github.com/bodybiz/backend/webhook"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v7"
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
	var authEnvironment auth.Environment
	var dotFile string
	var err error

	// Determine running environment and initialize structural logger
	env := os.Getenv("API_ENV")
	if "production" == env {
		dotFile = ".env.production"
		authEnvironment = auth.EnvProduction
		logger, err = zap.NewProduction()
	} else {
		dotFile = ".env.development"
		authEnvironment = auth.EnvDevelopment
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	logger = logger.With(zap.String("Version", Version))

	// Initialize sentry for error reporting
	if err := sentry.Init(sentry.ClientOptions{
		Environment: string(authEnvironment),
		Debug:       authEnvironment == auth.EnvDevelopment,
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
			"component": "api",
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

	stripeClient := external.NewStripeClient(os.Getenv("STRIPE_KEY"))

	// Initialize backend connections
	db, err := db.New(logger, os.Getenv("POSTGRES_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Postgres",
			zap.Error(err),
		)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     os.Getenv("REDIS_URI"),
		Password: os.Getenv("REDIS_PW"),
		DB:       0,
	})
	if _, err := rdb.Ping().Result(); err != nil {
		logger.Fatal("Cannot connect to Redis",
			zap.Error(err),
		)
	}
	defer rdb.Close()

	amqpBroker, err := notification.NewBroker(logger, os.Getenv("AMQP_URI"))
	if err != nil {
		logger.Fatal("Cannot connect to Broker",
			zap.Error(err),
		)
	}
	defer amqpBroker.Close()

	authenticator, err := auth.New(auth.Options{
		Logger:      logger,
		Environment: authEnvironment,
		JWTSecret:   []byte(os.Getenv("JWT_SECRET")),
	})
	if err != nil {
		logger.Fatal("Cannot initialize Auth",
			zap.Error(err),
		)
	}

	auditManager, err := audit.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize AuditManager",
			zap.Error(err),
		)
	}

	teamManager, err := team.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize TeamManager",
			zap.Error(err),
		)
	}

	clientManager, err := client.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize ClientManager",
			zap.Error(err),
		)
	}

	programManager, err := program.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize ProgramManager",
			zap.Error(err),
		)
	}

	purchaseManager, err := purchase.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize PurchaseManager",
			zap.Error(err),
		)
	}

	reportManager, err := report.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize ReportManager",
			zap.Error(err),
		)
	}

	paymentRouter, err := payment.NewService(payment.Options{
		Auth:            authenticator,
		PurchaseManager: purchaseManager,
		ClientManager:   clientManager,
		TeamManager:     teamManager,
		ProgramManager:  programManager,
		AuditManager:    auditManager,
		Broadcast:       amqpBroker,
		API:             payment.NewGateway(stripeClient),
		Logger:          logger,
		SuccessURL:      os.Getenv("CHECKOUT_SUCCESS_URL"),
		CancelURL:       os.Getenv("CHECKOUT_CANCEL_URL"),
	})
	if err != nil {
		logger.Fatal("Cannot initialize Payment Service Router",
			zap.Error(err),
		)
	}

	teamRouter, err := team.NewService(team.Options{
		Auth:        authenticator,
		TeamManager: teamManager,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Team Service Router",
			zap.Error(err),
		)
	}

	clientRouter, err := client.NewService(client.Options{
		Auth:          authenticator,
		ClientManager: clientManager,
		Cards:         paymentRouter,
		Statuses:      purchaseManager,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Client Service Router",
			zap.Error(err),
		)
	}

	programRouter, err := program.NewService(program.Options{
		Auth:           authenticator,
		ProgramManager: programManager,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Program Service Router",
			zap.Error(err),
		)
	}

	reportRouter, err := report.NewService(report.Options{
		Auth:          authenticator,
		ReportManager: reportManager,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Report Service Router",
			zap.Error(err),
		)
	}

	auditRouter, err := audit.NewService(audit.Options{
		AuditManager: auditManager,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Audit Service Router",
			zap.Error(err),
		)
	}

	reconciler, err := webhook.NewReconciler(db, webhook.ReconcilerOptions{
		PurchaseManager: purchaseManager,
		ClientManager:   clientManager,
		AuditManager:    auditManager,
		Broadcast:       amqpBroker,
		Redis:           rdb,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Webhook Reconciler",
			zap.Error(err),
		)
	}

	webhookRouter, err := webhook.NewService(webhook.Options{
		Reconciler:    reconciler,
		SigningSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Webhook Service Router",
			zap.Error(err),
		)
	}

	rootRouter := chi.NewRouter()

	rootRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{os.Getenv("SITE_URL")},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// signature-checked, not token-checked
	rootRouter.Mount("/webhooks", webhookRouter.Router())
	rootRouter.Mount("/auth", teamRouter.PublicRouter())

	rootRouter.Group(func(r chi.Router) {
		r.Use(authenticator.Middleware())
		r.Mount("/team", teamRouter.Router())
		r.Mount("/clients", clientRouter.Router())
		r.Mount("/programs", programRouter.Router())
		r.Mount("/payments", paymentRouter.Router())
		r.Mount("/reports", reportRouter.Router())
		r.Mount("/audit", auditRouter.Router())
	})

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":42069"
	}

	srv := &http.Server{
		Handler: rootRouter,
		Addr:    addr,
	}

	logger.Info("API listening",
		zap.String("Addr", addr),
	)

	log.Fatalln(srv.ListenAndServe())
}
