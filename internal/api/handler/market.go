package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/meemoee/market-movers-hub-sub000/internal/gamma"
	"github.com/meemoee/market-movers-hub-sub000/internal/openrouter"
)

// MarketHandler handles market metadata and model listing endpoints.
type MarketHandler struct {
	gamma *gamma.Client
	or    *openrouter.Client
}

// NewMarketHandler creates a new market handler.
func NewMarketHandler(gammaClient *gamma.Client, or *openrouter.Client) *MarketHandler {
	return &MarketHandler{gamma: gammaClient, or: or}
}

// GetMarket handles GET /api/v1/markets/:slug. The price field carries
// the latest consensus estimate when one can be derived.
func (h *MarketHandler) GetMarket(c *gin.Context) {
	market, err := h.gamma.MarketBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to fetch market: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"market": market,
		"price":  market.PriceInfo(),
	})
}

// GetEventMarkets handles GET /api/v1/markets/:slug/related, returning
// the active sibling markets from the containing event.
func (h *MarketHandler) GetEventMarkets(c *gin.Context) {
	markets, eventSlug, err := h.gamma.ActiveEventMarkets(c.Request.Context(), c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to fetch event markets: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"event_slug": eventSlug,
		"markets":    markets,
	})
}

// ListModels handles GET /api/v1/models. The supported_parameter query
// filters to models advertising a capability, e.g.
// ?supported_parameter=structured_outputs.
func (h *MarketHandler) ListModels(c *gin.Context) {
	models, err := h.or.ListModels(c.Request.Context(), c.Query("supported_parameter"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to list models: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"models": models,
		"count":  len(models),
	})
}
