package router

import (
	"context"
	"net/http"
	"strings"

	"app/internal/api/v1/handler"
	"app/internal/billing"
	"app/internal/config"
	"app/internal/middleware"
	"app/internal/plan"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func New(cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initializing")

	ctx := context.Background()

	// 1. Open DB connection (connection pooling)
	dsn := cfg.DatabaseURL
	// In development we disable SSL for local testing. In production the
	// connection string should carry the correct SSL settings.
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + "sslmode=disable"
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open DB connection")
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to ping DB")
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	// 2. Build the plan catalog; a missing price id fails startup here.
	catalog, err := plan.NewCatalog(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid plan catalog configuration")
		return nil, nil, err
	}

	// 3. Resolve Stripe credentials (env first, Secret Manager fallback).
	creds, err := billing.Init(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to resolve Stripe credentials")
		return nil, nil, err
	}
	provider := billing.NewStripeProvider(creds.SecretKey, creds.WebhookSecret)

	// 4. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 5. Initialize repositories & services & handlers
	userRepo := repository.NewUserRepo(pool)
	subRepo := repository.NewSubscriptionRepo(pool)
	historyRepo := repository.NewBillingHistoryRepo(pool)

	subSvc := service.NewSubscriptionService(provider, userRepo, subRepo, logger)
	stripeSvc := service.NewStripeService(cfg, catalog, provider, userRepo, subRepo, historyRepo, logger)

	subscriptionHandler := handler.NewSubscriptionHandler(stripeSvc, subSvc, validate, logger)

	// 6. Initialize middleware
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)

	// 7. Create ServeMux router
	mux := http.NewServeMux()

	apiV1Mux := http.NewServeMux()
	subscriptionHandler.RegisterRoutes(apiV1Mux, authMiddleware)

	// Mount the API v1 routes under /v1
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	// 8. Apply CORS middleware. The info endpoint is called cross-origin by
	// the web client; webhook POSTs are unaffected.
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(c.Handler(mux)), pool, nil
}
