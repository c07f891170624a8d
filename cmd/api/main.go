package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meemoee/market-movers-hub-sub000/internal/api"
	"github.com/meemoee/market-movers-hub-sub000/internal/config"
	"github.com/meemoee/market-movers-hub-sub000/internal/extract"
	"github.com/meemoee/market-movers-hub-sub000/internal/gamma"
	"github.com/meemoee/market-movers-hub-sub000/internal/logger"
	"github.com/meemoee/market-movers-hub-sub000/internal/openrouter"
	"github.com/meemoee/market-movers-hub-sub000/internal/repository"
	"github.com/meemoee/market-movers-hub-sub000/internal/service"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	jobRepo := repository.NewJobRepository(db)
	streamRepo := repository.NewStreamRepository(db)
	researchRepo := repository.NewResearchRepository(db)

	// Initialize API clients
	orClient := openrouter.NewClient(&openrouter.Config{
		APIKey:      cfg.OpenRouter.APIKey,
		BaseURL:     cfg.OpenRouter.BaseURL,
		Timeout:     cfg.OpenRouter.Timeout,
		Retries:     cfg.OpenRouter.Retries,
		BackoffBase: cfg.OpenRouter.BackoffBase,
	})
	gammaClient := gamma.NewClient(&gamma.Config{
		BaseURL: cfg.Gamma.BaseURL,
		Timeout: cfg.Gamma.Timeout,
	})

	// Initialize services
	researchService := service.NewResearchService(
		jobRepo,
		streamRepo,
		researchRepo,
		orClient,
		gammaClient,
		extract.NewExtractor(cfg.Gamma.Timeout),
		appLogger,
		&service.ResearchConfig{
			AnalysisModel:       cfg.OpenRouter.AnalysisModel,
			ExtractionModel:     cfg.OpenRouter.ExtractionModel,
			MaxTokens:           cfg.OpenRouter.MaxTokens,
			MaxIterations:       cfg.Research.MaxIterations,
			QueriesPerIteration: cfg.Research.QueriesPerIteration,
			MaxSearchResults:    cfg.OpenRouter.MaxSearchResults,
			ReprocessWindow:     cfg.Research.ReprocessWindow,
		},
	)
	historicalService := service.NewHistoricalService(
		researchRepo,
		orClient,
		gammaClient,
		appLogger,
		cfg.OpenRouter.ExtractionModel,
	)

	// Start the research workers
	workers := service.NewWorkerPool(researchService, appLogger, &service.WorkerConfig{
		Workers:      cfg.Research.Workers,
		PollInterval: cfg.Research.PollInterval,
	})
	workers.Start(context.Background())

	// Setup router
	router := api.SetupRouter(&api.RouterDeps{
		Research:     researchService,
		Historical:   historicalService,
		Gamma:        gammaClient,
		OpenRouter:   orClient,
		Logger:       appLogger,
		PollInterval: cfg.Research.PollInterval,
	}, &cfg.Server)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Let in-flight jobs finish before killing the HTTP listener.
	workers.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
