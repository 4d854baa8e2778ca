package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"price_alert_backend/controllers"
	"price_alert_backend/middleware"
)

// Dependencies are the handlers and settings the route table needs
type Dependencies struct {
	Market    *controllers.MarketController
	WebSocket *controllers.WebSocketController
	JWTSecret string
	// Ready backs the readiness probe; nil means always ready
	Ready func(ctx context.Context) error
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	api := router.Group("/api/v1")
	{
		// Market routes
		market := api.Group("/market")
		{
			market.GET("/price/:symbol", deps.Market.GetPrice)
			market.POST("/prices", deps.Market.GetPrices)
			market.GET("/validate/:symbol", deps.Market.ValidateSymbol)
		}

		// Websocket routes. connect authenticates through the token query parameter.
		ws := api.Group("/ws")
		{
			ws.GET("/connect", deps.WebSocket.Connect)
			ws.GET("/stats", middleware.JWTAuthMiddleware(deps.JWTSecret), deps.WebSocket.GetStats)
		}
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Liveness probe
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Price Alert API is running",
		})
	})

	// Readiness probe
	router.GET("/ready", func(c *gin.Context) {
		if deps.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "not_ready",
					"message": err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}
