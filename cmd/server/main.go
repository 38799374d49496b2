// @title           TradieHub Backend API
// @version         1.0.0
// @description     Backend API for the tradie and client marketplace: quotes, payments, invoices, marketplace jobs, applications and credits.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"tradiehub-backend/internal/advisor"
	"tradiehub-backend/internal/config"
	"tradiehub-backend/internal/database"
	"tradiehub-backend/internal/database/memory"
	"tradiehub-backend/internal/handlers"
	"tradiehub-backend/internal/idempotency"
	"tradiehub-backend/internal/logging"
	"tradiehub-backend/internal/messaging"
	"tradiehub-backend/internal/metrics"
	"tradiehub-backend/internal/middleware"
	"tradiehub-backend/internal/models"
	"tradiehub-backend/internal/notify"
	"tradiehub-backend/internal/payments"
	"tradiehub-backend/internal/pricing"
	"tradiehub-backend/internal/services"
	"tradiehub-backend/internal/supabase"
)

// store is everything the services need from persistence. Both the
// PostgreSQL and the in-memory stores satisfy it.
type store interface {
	services.QuoteStore
	services.PaymentStore
	services.MarketplaceStore
	services.ApplicationStore
	services.CreditStore
	services.Directory
	handlers.Pinger
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Environment, os.Stdout)

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, closeDB := openStore(cfg, logger)
	defer closeDB()

	locker, closeLocker := openLocker(cfg, logger)
	defer closeLocker()

	if cfg.StripeSecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set, payments will fail")
	}
	gateway := payments.NewStripeGateway(cfg.StripeSecretKey)

	dispatcher := newDispatcher(cfg, logger)

	quoteService := services.NewQuoteService(services.QuoteServiceDeps{
		Quotes:     db,
		Payments:   db,
		Directory:  db,
		Calculator: pricing.NewCalculator(cfg.GSTRate),
		Gateway:    gateway,
		Sender:     dispatcher,
		Locker:     locker,
		Logger:     logger,
	}, services.QuoteServiceConfig{
		Currency:            cfg.Currency,
		QuoteNumberPrefix:   cfg.QuoteNumberPrefix,
		BaseURL:             cfg.BaseURL,
		PaymentTimeout:      cfg.PaymentTimeout,
		NotificationTimeout: cfg.NotificationTimeout,
	})
	jobService := services.NewMarketplaceJobService(db, logger)
	applicationService := services.NewApplicationService(db, services.DefaultCreditCosts, cfg.AllowWithdrawalRefunds, logger)
	creditService := services.NewCreditService(db, logger)
	pricingAdvisor := advisor.New(cfg.AIPricingURL, cfg.AIPricingAPIKey, 0, logger)

	sweeper := services.NewExpirySweeper(quoteService, jobService, logger)
	if err := sweeper.Start(cfg.ExpirySweepSchedule); err != nil {
		logger.Fatalf("Failed to start expiry sweeper: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	limiter.StartCleanup(ctx, 5*time.Minute)
	paymentLimiter := middleware.NewRateLimiter(cfg.PaymentRateLimitRPS, cfg.PaymentRateLimitRPS, logger)
	paymentLimiter.StartCleanup(ctx, 5*time.Minute)

	// Initialize handlers
	quotesHandler := handlers.NewQuotesHandler(quoteService, logger)
	pricingHandler := handlers.NewPricingHandler(quoteService, pricingAdvisor, logger)
	marketplaceHandler := handlers.NewMarketplaceHandler(jobService, logger)
	applicationsHandler := handlers.NewApplicationsHandler(applicationService, logger)
	creditsHandler := handlers.NewCreditsHandler(creditService, logger)

	// Setup router
	router := gin.New()
	router.Use(logging.RequestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(metrics.Middleware())

	// Health and metrics (no auth)
	router.GET("/health", handlers.HealthHandler(db))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api/v1")

	// Public quote link
	api.GET("/quotes/view/:quoteNumber", limiter.Handler(), quotesHandler.ViewQuote)

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(cfg), limiter.Handler())

	tradie := middleware.RequireRole(models.RoleTradie)
	client := middleware.RequireRole(models.RoleClient)
	admin := middleware.RequireRole(models.RoleAdmin)
	tradieOrAdmin := middleware.RequireRole(models.RoleTradie, models.RoleAdmin)
	clientOrAdmin := middleware.RequireRole(models.RoleClient, models.RoleAdmin)

	// Pricing
	authed.POST("/quotes/calculate", pricingHandler.Calculate)
	authed.POST("/quotes/ai-pricing", tradie, pricingHandler.SuggestPrice)

	// Quotes
	authed.POST("/quotes", tradie, quotesHandler.CreateQuote)
	authed.GET("/quotes", tradie, quotesHandler.ListQuotes)
	authed.GET("/quotes/analytics", tradie, quotesHandler.GetAnalytics)
	authed.GET("/quotes/:id", quotesHandler.GetQuote)
	authed.PUT("/quotes/:id", tradie, quotesHandler.UpdateQuote)
	authed.DELETE("/quotes/:id", tradie, quotesHandler.DeleteQuote)
	authed.PATCH("/quotes/:id/status", tradie, quotesHandler.UpdateQuoteStatus)
	authed.POST("/quotes/:id/send", tradie, quotesHandler.SendQuote)
	authed.POST("/quotes/accept/:quoteNumber", client, quotesHandler.AcceptQuote)
	authed.POST("/quotes/reject/:quoteNumber", client, quotesHandler.RejectQuote)

	// Payments
	pay := authed.Group("", paymentLimiter.Handler())
	pay.POST("/quotes/:id/accept-with-payment", client, middleware.RequireVerifiedEmail(), quotesHandler.AcceptWithPayment)
	pay.POST("/quotes/:id/payment-intent", client, quotesHandler.CreatePaymentIntent)
	pay.POST("/quotes/:id/invoice", tradie, quotesHandler.GenerateInvoice)
	pay.POST("/quotes/:id/refund", tradie, quotesHandler.RefundPayment)

	// Marketplace jobs
	authed.GET("/marketplace/jobs", marketplaceHandler.ListJobs)
	authed.POST("/marketplace/jobs", client, marketplaceHandler.CreateJob)
	authed.GET("/marketplace/jobs/:id", marketplaceHandler.GetJob)
	authed.PUT("/marketplace/jobs/:id", client, marketplaceHandler.UpdateJob)
	authed.DELETE("/marketplace/jobs/:id", client, marketplaceHandler.DeleteJob)
	authed.GET("/marketplace/jobs/:id/eligibility", tradie, applicationsHandler.CheckEligibility)
	authed.GET("/marketplace/jobs/:id/applications", clientOrAdmin, applicationsHandler.ListJobApplications)

	// Applications
	authed.POST("/marketplace/applications", tradie, middleware.RequireVerifiedEmail(), applicationsHandler.CreateApplication)
	authed.GET("/marketplace/applications/mine", tradie, applicationsHandler.ListMyApplications)
	authed.POST("/marketplace/applications/bulk-status", clientOrAdmin, applicationsHandler.BulkUpdateStatus)
	authed.GET("/marketplace/applications/:id", applicationsHandler.GetApplication)
	authed.PATCH("/marketplace/applications/:id/status", applicationsHandler.UpdateStatus)
	authed.POST("/marketplace/applications/:id/withdraw", tradieOrAdmin, applicationsHandler.Withdraw)

	// Credits
	authed.GET("/credits/balance", tradie, creditsHandler.GetBalance)
	authed.GET("/credits/transactions", tradie, creditsHandler.ListTransactions)
	authed.POST("/credits/grants", admin, creditsHandler.GrantCredits)

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("port", port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	sweeper.Stop(shutdownCtx)
}

func openStore(cfg *config.Config, logger *logrus.Logger) (store, func()) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using the in-memory store. Data will not survive a restart.")
		return memory.New(), func() {}
	}

	db, err := database.NewStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	applied, err := database.NewMigrator(db.DB(), logger).Run(ctx)
	if err != nil {
		logger.Fatalf("Migration failed: %v", err)
	}
	logger.WithField("applied", len(applied)).Info("Migrations completed successfully")

	return db, func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close database")
		}
	}
}

func openLocker(cfg *config.Config, logger *logrus.Logger) (services.Locker, func()) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, request ids are only deduplicated within this process")
		return idempotency.NewMemoryLocker(), func() {}
	}

	locker, err := idempotency.NewRedisLocker(cfg.RedisURL)
	if err != nil {
		logger.Fatalf("Failed to initialize redis: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := locker.Ping(ctx); err != nil {
		logger.Fatalf("Failed to reach redis: %v", err)
	}
	return locker, func() { _ = locker.Close() }
}

// newDispatcher wires each notification channel that is configured. Unset
// channels report a delivery failure instead of blocking the send.
func newDispatcher(cfg *config.Config, logger *logrus.Logger) *notify.Dispatcher {
	var messenger notify.Messenger
	if client := messaging.NewClient(cfg.MessagingAPIBaseURL, cfg.MessagingAPIKey); client.Configured() {
		messenger = client
	} else {
		logger.Warn("Messaging API not configured, email and SMS delivery disabled")
	}

	var documents notify.DocumentStore
	var portal notify.PortalPublisher
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		documents = supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)

		supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize Supabase client, portal delivery disabled")
		} else {
			portal = supabase.NewPortalClient(supabaseClient)
		}
	} else {
		logger.Warn("Supabase not configured, PDF and portal delivery disabled")
	}

	return notify.NewDispatcher(messenger, documents, portal, logger)
}
