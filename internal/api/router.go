package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meemoee/market-movers-hub-sub000/internal/api/handler"
	"github.com/meemoee/market-movers-hub-sub000/internal/api/middleware"
	"github.com/meemoee/market-movers-hub-sub000/internal/config"
	"github.com/meemoee/market-movers-hub-sub000/internal/gamma"
	"github.com/meemoee/market-movers-hub-sub000/internal/logger"
	"github.com/meemoee/market-movers-hub-sub000/internal/openrouter"
	"github.com/meemoee/market-movers-hub-sub000/internal/service"
)

// RouterDeps bundles what the router needs.
type RouterDeps struct {
	Research     *service.ResearchService
	Historical   *service.HistoricalService
	Gamma        *gamma.Client
	OpenRouter   *openrouter.Client
	Logger       *logger.Logger
	PollInterval time.Duration
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *RouterDeps, serverCfg *config.ServerConfig) *gin.Engine {
	switch serverCfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  serverCfg.CORS.AllowedOrigins,
		AllowAllOrigins: serverCfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler(deps.Research)
	jobHandler := handler.NewJobHandler(deps.Research, deps.PollInterval)
	researchHandler := handler.NewResearchHandler(deps.Research)
	marketHandler := handler.NewMarketHandler(deps.Gamma, deps.OpenRouter)
	historicalHandler := handler.NewHistoricalHandler(deps.Historical)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Research jobs
		v1.POST("/research-jobs", jobHandler.CreateJob)
		v1.GET("/research-jobs", jobHandler.ListJobs)
		v1.GET("/research-jobs/:id", jobHandler.GetJob)
		v1.POST("/research-jobs/:id/retry", jobHandler.RetryJob)
		v1.GET("/research-jobs/:id/stream", jobHandler.StreamJob)

		// One-shot web research
		v1.POST("/web-research", researchHandler.QuickResearch)
		v1.GET("/web-research", researchHandler.ListResearch)
		v1.GET("/web-research/:id", researchHandler.GetResearch)

		// Markets and models
		v1.GET("/markets/:slug", marketHandler.GetMarket)
		v1.GET("/markets/:slug/related", marketHandler.GetEventMarkets)
		v1.GET("/models", marketHandler.ListModels)

		// Historical comparisons
		v1.GET("/historical-events", historicalHandler.ListEvents)
		v1.POST("/markets/:slug/comparisons", historicalHandler.GenerateComparisons)
		v1.GET("/markets/:slug/comparisons", historicalHandler.GetComparisons)
	}

	return r
}
