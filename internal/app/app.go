package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/autofi/recommender/internal/config"
	"github.com/autofi/recommender/internal/database"
	"github.com/autofi/recommender/internal/handlers"
	"github.com/autofi/recommender/internal/messaging"
	"github.com/autofi/recommender/internal/middleware"
	"github.com/autofi/recommender/internal/services"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine

	consumer       *messaging.InteractionConsumer
	consumerCancel context.CancelFunc
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	svcs, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svcs

	if cfg.Kafka.Enabled {
		app.consumer = messaging.NewInteractionConsumer(cfg, svcs.Cache, app.logger)
		consumerCtx, cancel := context.WithCancel(context.Background())
		app.consumerCancel = cancel
		go func() {
			if err := app.consumer.Run(consumerCtx); err != nil && consumerCtx.Err() == nil {
				app.logger.WithError(err).Error("Interaction consumer stopped")
			}
		}()
	}

	app.handlers = handlers.New(app.logger, svcs, app.consumer)

	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.consumerCancel != nil {
		a.consumerCancel()
		if err := a.consumer.Close(); err != nil {
			a.logger.WithError(err).Error("Error closing interaction consumer")
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.CorrelationID())
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.Security())
	router.Use(middleware.Compression())

	// Unauthenticated endpoints
	router.GET("/", a.handlers.Health.Root)
	router.GET("/health", a.handlers.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/ai/popular-queries", a.handlers.Assistant.PopularQueries)

	// API routes
	api := router.Group("/api")
	{
		api.Use(middleware.Auth(a.services.Auth, a.logger))
		api.Use(middleware.RateLimit(a.services.RateLimit, a.logger))

		recommendations := api.Group("/recommendations")
		{
			recommendations.GET("/user/:user_id", a.handlers.Recommendation.Get)
			recommendations.GET("/similar/:vehicle_id", a.handlers.Recommendation.Similar)
		}

		ai := api.Group("/ai")
		{
			ai.POST("/query", a.handlers.Assistant.Query)
			ai.GET("/context/:user_id", a.handlers.Assistant.Context)
			ai.POST("/feedback", a.handlers.Assistant.Feedback)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/retrain", a.handlers.Admin.Retrain)
			admin.GET("/consumer-stats", a.handlers.Admin.ConsumerStats)
		}
	}

	a.router = router
}
