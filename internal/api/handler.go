package api

import (
	"context"
	"net/http"
	"time"

	"exchange-service/config"
	"exchange-service/internal/service"
	"exchange-service/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	products     *service.ProductService
	negotiations *service.NegotiationService
	messages     *service.MessageService
	tokens       *session.TokenManager
	rateLimit    config.RateLimitConfig
	ready        func(context.Context) error
}

// NewHandler creates a new HTTP handler
func NewHandler(
	products *service.ProductService,
	negotiations *service.NegotiationService,
	messages *service.MessageService,
	tokens *session.TokenManager,
	rateLimit config.RateLimitConfig,
) *Handler {
	return &Handler{
		products:     products,
		negotiations: negotiations,
		messages:     messages,
		tokens:       tokens,
		rateLimit:    rateLimit,
	}
}

// SetReadinessCheck installs the dependency check behind /ready
func (h *Handler) SetReadinessCheck(check func(context.Context) error) {
	h.ready = check
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware(h.tokens))
	{
		v1.GET("/products", h.listCatalog)
		v1.GET("/products/mine", h.listMine)
		v1.POST("/products", h.createProduct)
		v1.GET("/products/:id", h.getProduct)
		v1.PUT("/products/:id", h.updateProduct)
		v1.DELETE("/products/:id", h.deleteProduct)

		v1.GET("/negotiations", h.listNegotiations)
		v1.POST("/negotiations", h.createNegotiation)
		v1.GET("/negotiations/:id", h.getNegotiation)
		v1.PUT("/negotiations/:id/offers", h.setOffers)
		v1.POST("/negotiations/:id/submit", h.submitNegotiation)
		v1.PUT("/negotiations/:id/decision", h.respondNegotiation)
		v1.DELETE("/negotiations/:id", h.cancelNegotiation)
		v1.DELETE("/negotiations/:id/draft", h.discardDraft)
		v1.POST("/negotiations/:id/messages",
			rateLimitMiddleware(h.rateLimit.MessagesPerPeriod, h.rateLimit.Period),
			h.sendMessage)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.ready(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"details": err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}
