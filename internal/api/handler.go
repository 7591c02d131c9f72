package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"upsell-service/internal/models"
	"upsell-service/internal/service"
	"upsell-service/internal/store"
	"upsell-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const genericFailure = "could not complete"

// Pinger is a dependency checked by the readiness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	offers   *service.OfferService
	rules    *service.RuleService
	recorder *service.EventRecorder
	catalog  *service.CatalogService
	deps     map[string]Pinger
	limiter  *RateLimiter
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	offers *service.OfferService,
	rules *service.RuleService,
	recorder *service.EventRecorder,
	catalog *service.CatalogService,
	deps map[string]Pinger,
) *Handler {
	return &Handler{
		offers:   offers,
		rules:    rules,
		recorder: recorder,
		catalog:  catalog,
		deps:     deps,
		logger:   util.GetLogger(),
	}
}

// UseRateLimiter limits the storefront routes per client IP
func (h *Handler) UseRateLimiter(rl *RateLimiter) {
	h.limiter = rl
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		storefront := v1.Group("", h.limiter.Middleware())
		storefront.POST("/offers/upsell", h.getUpsellOffer)
		storefront.POST("/offers/accept", h.acceptOffer)
		storefront.POST("/carts/:cart_id/lines", h.addCartLine)
		storefront.GET("/carts/:cart_id/cross-sells", h.getCrossSellOffers)
		storefront.POST("/carts/:cart_id/prices", h.applyCartDiscounts)

		v1.POST("/orders/complete", h.completeOrder)

		v1.GET("/rules", h.listRules)
		v1.POST("/rules", h.createRule)
		v1.GET("/rules/:id", h.getRule)
		v1.PUT("/rules/:id", h.updateRule)
		v1.DELETE("/rules/:id", h.deleteRule)

		v1.GET("/products/:id", h.getProduct)
		v1.PUT("/products/:id", h.syncProduct)

		v1.GET("/stats", h.getStats)
		v1.GET("/stats/rules", h.getRuleStats)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn("Dependency not ready", zap.String("dependency", name), zap.Error(err))
			failed[name] = "unavailable"
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       "not ready",
			"dependencies": failed,
			"time":         time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type upsellRequest struct {
	ProductID int64  `json:"product_id" binding:"required"`
	CartID    string `json:"cart_id"`
	Quantity  int    `json:"quantity"`
}

// getUpsellOffer returns the offer for a product just added to the cart.
// With a cart_id the added product is first recorded as a plain cart line.
// No offer is answered with 204.
func (h *Handler) getUpsellOffer(c *gin.Context) {
	var req upsellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Status(http.StatusNoContent)
		return
	}

	if req.CartID != "" {
		line := &service.AddToCartRequest{CartID: req.CartID, ProductID: req.ProductID, Quantity: req.Quantity}
		if err := h.offers.AddToCart(c.Request.Context(), line); err != nil {
			h.customerError(c, err)
			return
		}
	}

	offer, ok := h.offers.GetUpsellOffer(c.Request.Context(), req.ProductID)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, offer)
}

// getCrossSellOffers returns the checkout offers for a cart
func (h *Handler) getCrossSellOffers(c *gin.Context) {
	offers, err := h.offers.GetCrossSellOffers(c.Request.Context(), c.Param("cart_id"))
	if err != nil {
		h.customerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": offers})
}

// acceptOffer adds an offered product to the cart
func (h *Handler) acceptOffer(c *gin.Context) {
	var req service.AcceptOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": genericFailure})
		return
	}

	if err := h.offers.AcceptOffer(c.Request.Context(), &req); err != nil {
		h.customerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "added"})
}

type cartLineRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

// addCartLine records a product added to the cart outside any offer
func (h *Handler) addCartLine(c *gin.Context) {
	var req cartLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": genericFailure})
		return
	}

	line := &service.AddToCartRequest{CartID: c.Param("cart_id"), ProductID: req.ProductID, Quantity: req.Quantity}
	if err := h.offers.AddToCart(c.Request.Context(), line); err != nil {
		h.customerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "added"})
}

// applyCartDiscounts returns the price overrides for a cart
func (h *Handler) applyCartDiscounts(c *gin.Context) {
	overrides, err := h.offers.ApplyCartDiscounts(c.Request.Context(), c.Param("cart_id"))
	if err != nil {
		h.customerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"overrides": overrides})
}

// completeOrder attributes order lines to accepted offers
func (h *Handler) completeOrder(c *gin.Context) {
	var order models.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": genericFailure})
		return
	}

	result, err := h.offers.CompleteOrder(c.Request.Context(), &order)
	if err != nil {
		h.customerError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// customerError hides internal detail from storefront callers
func (h *Handler) customerError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrInvalidInput) || errors.Is(err, service.ErrOfferUnavailable) {
		c.JSON(http.StatusBadRequest, gin.H{"error": genericFailure})
		return
	}
	h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": genericFailure})
}

// adminError maps rule administration errors
func (h *Handler) adminError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRule):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid rule",
			"details": err.Error(),
		})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
	default:
		h.logger.Error("Rule request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

func pathID(c *gin.Context, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + what + " ID"})
		return 0, false
	}
	return id, true
}

// listRules handles listing rules
func (h *Handler) listRules(c *gin.Context) {
	rules, err := h.rules.ListRules(c.Request.Context())
	if err != nil {
		h.adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

// createRule handles rule creation
func (h *Handler) createRule(c *gin.Context) {
	var req service.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	rule, err := h.rules.CreateRule(c.Request.Context(), &req)
	if err != nil {
		h.adminError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// getRule handles get rule by ID
func (h *Handler) getRule(c *gin.Context) {
	id, ok := pathID(c, "rule")
	if !ok {
		return
	}

	rule, err := h.rules.GetRule(c.Request.Context(), id)
	if err != nil {
		h.adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// updateRule handles rule updates
func (h *Handler) updateRule(c *gin.Context) {
	id, ok := pathID(c, "rule")
	if !ok {
		return
	}

	var req service.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	rule, err := h.rules.UpdateRule(c.Request.Context(), id, &req)
	if err != nil {
		h.adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// deleteRule handles rule deletion
func (h *Handler) deleteRule(c *gin.Context) {
	id, ok := pathID(c, "rule")
	if !ok {
		return
	}

	if err := h.rules.DeleteRule(c.Request.Context(), id); err != nil {
		h.adminError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// getProduct returns a synced catalog product
func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c, "product")
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		h.logger.Error("Product lookup failed", zap.Int64("product_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// syncProduct stores a product pushed by the host catalog
func (h *Handler) syncProduct(c *gin.Context) {
	id, ok := pathID(c, "product")
	if !ok {
		return
	}

	var product models.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	product.ID = id

	if err := h.catalog.SyncProduct(c.Request.Context(), &product); err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid product",
				"details": err.Error(),
			})
			return
		}
		h.logger.Error("Product sync failed", zap.Int64("product_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, product)
}

// getStats returns event totals, or a single count with ?event_type=
func (h *Handler) getStats(c *gin.Context) {
	if eventType := c.Query("event_type"); eventType != "" {
		count, err := h.recorder.Stats(c.Request.Context(), models.EventType(eventType))
		if err != nil {
			if errors.Is(err, service.ErrInvalidInput) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event type"})
				return
			}
			h.adminError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"event_type": eventType, "count": count})
		return
	}

	report, err := h.recorder.Report(c.Request.Context())
	if err != nil {
		h.adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// getRuleStats returns the per-rule breakdown
func (h *Handler) getRuleStats(c *gin.Context) {
	rows, err := h.recorder.RuleReport(c.Request.Context())
	if err != nil {
		h.adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rows})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// requestLogger writes one structured line per request
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
