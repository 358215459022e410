package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"inventory-sync/internal/models"
	"inventory-sync/internal/service"
	"inventory-sync/internal/store"
	"inventory-sync/internal/util"
	"inventory-sync/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	mappings    *service.MappingService
	ledger      *service.Ledger
	distributor *service.Distributor
	stats       *service.StatsService
	reconciler  *worker.Reconciler
}

// NewHandler creates a new HTTP handler
func NewHandler(
	mappings *service.MappingService,
	ledger *service.Ledger,
	distributor *service.Distributor,
	stats *service.StatsService,
	reconciler *worker.Reconciler,
) *Handler {
	return &Handler{
		mappings:    mappings,
		ledger:      ledger,
		distributor: distributor,
		stats:       stats,
		reconciler:  reconciler,
	}
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
	{
		v1.POST("/mappings", h.createMapping)
		v1.GET("/mappings", h.listMappings)
		v1.GET("/mappings/:sku", h.getMapping)
		v1.PATCH("/mappings/:sku/sync", h.setSyncEnabled)
		v1.POST("/mappings/:sku/channels", h.addChannel)

		v1.DELETE("/channels/:platform/:listing_id", h.removeChannel)
		v1.POST("/channels/:platform/:listing_id/pull", h.pullChannel)

		v1.POST("/inventory/adjust", h.adjustInventory)
		v1.POST("/inventory/sale", h.recordSale)
		v1.POST("/inventory/restock", h.recordRestock)
		v1.GET("/inventory/:sku/availability", h.getAvailability)

		v1.POST("/sync/:sku", h.syncNow)

		v1.POST("/daemon/start", h.startDaemon)
		v1.POST("/daemon/stop", h.stopDaemon)
		v1.GET("/daemon/status", h.daemonStatus)
		v1.GET("/daemon/config", h.getDaemonConfig)
		v1.PUT("/daemon/config", h.updateDaemonConfig)

		v1.GET("/events", h.getEvents)
		v1.GET("/stats", h.getStats)
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
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createMapping registers a new SKU
func (h *Handler) createMapping(c *gin.Context) {
	var req service.CreateMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	mapping, err := h.mappings.CreateMapping(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to create mapping", err)
		return
	}

	c.JSON(http.StatusCreated, mapping)
}

// listMappings lists mappings newest-first
func (h *Handler) listMappings(c *gin.Context) {
	filter := models.MappingFilter{
		SyncEnabledOnly: boolQuery(c, "sync_enabled_only"),
		Limit:           intQuery(c, "limit", 0),
		Offset:          intQuery(c, "offset", 0),
	}

	mappings, err := h.mappings.ListMappings(c.Request.Context(), filter)
	if err != nil {
		respondError(c, "Failed to list mappings", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mappings": mappings,
		"count":    len(mappings),
	})
}

// getMapping returns a mapping with its channels and the quantity its
// channels may advertise under the current policy
func (h *Handler) getMapping(c *gin.Context) {
	sku := c.Param("sku")

	mapping, err := h.mappings.GetMapping(c.Request.Context(), sku)
	if err != nil {
		respondError(c, "Failed to get mapping", err)
		return
	}

	cfg, err := h.reconciler.GetConfig(c.Request.Context())
	if err != nil {
		cfg = models.DefaultDaemonConfig()
	}

	c.JSON(http.StatusOK, gin.H{
		"mapping":            mapping,
		"available_quantity": mapping.AvailableQuantity(cfg.BufferStock),
	})
}

// setSyncEnabledRequest carries the reconciliation toggle
type setSyncEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// setSyncEnabled pauses or resumes reconciliation for one SKU
func (h *Handler) setSyncEnabled(c *gin.Context) {
	var req setSyncEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	sku := c.Param("sku")
	if err := h.mappings.SetSyncEnabled(c.Request.Context(), sku, *req.Enabled); err != nil {
		respondError(c, "Failed to update sync flag", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sku":          sku,
		"sync_enabled": *req.Enabled,
	})
}

// addChannel links a platform listing to a SKU
func (h *Handler) addChannel(c *gin.Context) {
	var req service.AddChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	entry, err := h.mappings.AddChannel(c.Request.Context(), c.Param("sku"), &req)
	if err != nil {
		respondError(c, "Failed to add channel", err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// removeChannel unlinks a platform listing
func (h *Handler) removeChannel(c *gin.Context) {
	platform := c.Param("platform")
	listingID := c.Param("listing_id")

	if err := h.mappings.RemoveChannel(c.Request.Context(), platform, listingID); err != nil {
		respondError(c, "Failed to remove channel", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "removed",
		"platform":   platform,
		"listing_id": listingID,
	})
}

// pullChannelRequest carries a platform-reported quantity
type pullChannelRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// pullChannel adopts a platform-reported quantity as the channel baseline
func (h *Handler) pullChannel(c *gin.Context) {
	var req pullChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	event, err := h.distributor.AdoptChannelQuantity(
		c.Request.Context(), c.Param("platform"), c.Param("listing_id"), *req.Quantity)
	if err != nil {
		respondError(c, "Failed to adopt channel quantity", err)
		return
	}

	c.JSON(http.StatusOK, event)
}

// adjustInventory applies a signed delta to a SKU's total
func (h *Handler) adjustInventory(c *gin.Context) {
	var req service.AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	event, err := h.ledger.AdjustInventory(c.Request.Context(), req.SKU, req.Delta, req.Reason, req.Platform)
	if err != nil {
		respondError(c, "Failed to adjust inventory", err)
		return
	}

	c.JSON(http.StatusOK, event)
}

// recordSale records units sold on a channel
func (h *Handler) recordSale(c *gin.Context) {
	var req service.SaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	event, err := h.ledger.RecordSale(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to record sale", err)
		return
	}

	c.JSON(http.StatusOK, event)
}

// recordRestock records stock received
func (h *Handler) recordRestock(c *gin.Context) {
	var req service.RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	event, err := h.ledger.RecordRestock(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to record restock", err)
		return
	}

	c.JSON(http.StatusOK, event)
}

// getAvailability serves the cached quantity view for one SKU
func (h *Handler) getAvailability(c *gin.Context) {
	availability, err := h.ledger.GetAvailability(c.Request.Context(), c.Param("sku"))
	if err != nil {
		respondError(c, "Failed to get availability", err)
		return
	}

	c.JSON(http.StatusOK, availability)
}

// syncNow runs one distribution pass for a SKU
func (h *Handler) syncNow(c *gin.Context) {
	result, err := h.distributor.SyncToChannels(c.Request.Context(), c.Param("sku"))
	if err != nil {
		respondError(c, "Failed to sync channels", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// startDaemon arms the reconciliation loop; the request body is optional
func (h *Handler) startDaemon(c *gin.Context) {
	var req worker.StartDaemonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
	}

	if err := h.reconciler.Start(c.Request.Context(), &req); err != nil {
		respondError(c, "Failed to start sync daemon", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// stopDaemon disarms the reconciliation loop; stopping a stopped daemon is
// a no-op
func (h *Handler) stopDaemon(c *gin.Context) {
	if h.reconciler.Stop(c.Request.Context()) {
		c.JSON(http.StatusOK, gin.H{"status": "stopped"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "not_running"})
}

// daemonStatus reports lifecycle state and active policy
func (h *Handler) daemonStatus(c *gin.Context) {
	status, err := h.reconciler.Status(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to get daemon status", err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// getDaemonConfig returns the persisted reconciliation policy
func (h *Handler) getDaemonConfig(c *gin.Context) {
	cfg, err := h.reconciler.GetConfig(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to get sync config", err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// updateDaemonConfig applies a partial policy update
func (h *Handler) updateDaemonConfig(c *gin.Context) {
	var req worker.UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	cfg, err := h.reconciler.UpdateConfig(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to update sync config", err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// getEvents returns the filtered audit log, newest first
func (h *Handler) getEvents(c *gin.Context) {
	events, err := h.stats.GetEvents(
		c.Request.Context(),
		c.Query("sku"),
		c.Query("event_type"),
		intQuery(c, "days", 0),
		intQuery(c, "limit", 0),
	)
	if err != nil {
		respondError(c, "Failed to get events", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// getStats returns aggregate sync statistics
func (h *Handler) getStats(c *gin.Context) {
	stats, err := h.stats.GetStats(c.Request.Context(), intQuery(c, "days", 0))
	if err != nil {
		respondError(c, "Failed to get stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// respondError maps domain errors onto HTTP statuses
func respondError(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateSKU),
		errors.Is(err, store.ErrDuplicateChannel),
		errors.Is(err, worker.ErrDaemonRunning):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, worker.ErrIntervalTooShort):
		status = http.StatusBadRequest
	}

	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	value, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return fallback
	}
	return value
}

func boolQuery(c *gin.Context, name string) bool {
	value, err := strconv.ParseBool(c.Query(name))
	if err != nil {
		return false
	}
	return value
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
