package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"price-tracker/config"
	"price-tracker/internal/service"
	"price-tracker/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// triggerSlack is added on top of the batch window when bounding detached
// runs; retries and the final write phase run past the paced window
const triggerSlack = 15 * time.Minute

// triggerTimeout bounds runs kicked off by the API. Batches pace themselves
// over the configured window, so the bound follows the config.
func triggerTimeout(cfg config.ScrapeConfig) time.Duration {
	return time.Duration(cfg.BatchDurationMinutes)*time.Minute + triggerSlack
}

// Handler exposes the HTTP surface: manual scan triggers, queue inspection
// and price history reads
type Handler struct {
	scrapes *service.ScrapeService
	queues  *service.QueueService
	prices  *service.PriceService
	sched   service.ScheduleInfo
	scrape  config.ScrapeConfig
	logger  *zap.Logger
}

func NewHandler(scrapes *service.ScrapeService, queues *service.QueueService,
	prices *service.PriceService, sched service.ScheduleInfo, scrape config.ScrapeConfig) *Handler {
	return &Handler{
		scrapes: scrapes,
		queues:  queues,
		prices:  prices,
		sched:   sched,
		scrape:  scrape,
		logger:  util.GetLogger(),
	}
}

// SetupRouter configures all routes
func (h *Handler) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		scrapers := v1.Group("/scrapers")
		{
			scrapers.GET("/status", h.scraperStatus)
			scrapers.POST("/:source/refresh-products", h.triggerDiscovery)
			scrapers.POST("/:source/scan-batch", h.triggerBatch)
			scrapers.POST("/:source/products/:id", h.triggerSingleProduct)
		}

		products := v1.Group("/products")
		{
			products.GET("/:source/:id/price-history", h.priceHistory)
			products.GET("/:source/:id/price-trend", h.priceTrend)
		}

		v1.GET("/stats/price-changes", h.priceChanges)

		queue := v1.Group("/queue")
		{
			queue.GET("/:source/stats", h.queueStats)
			queue.GET("/:source/high-priority", h.highPriority)
			queue.POST("/:source/reset-errors/:id", h.resetErrors)
			queue.DELETE("/:source", h.clearQueue)
		}
	}

	return router
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) scraperStatus(c *gin.Context) {
	statuses, err := h.scrapes.Status(c.Request.Context(), h.sched)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": statuses})
}

// triggerDiscovery kicks off a sitemap refresh in the background and returns
// immediately; progress is observable through logs, metrics and the status
// endpoint
func (h *Handler) triggerDiscovery(c *gin.Context) {
	source := c.Param("source")
	if err := h.scrapes.ValidateSource(source); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout(h.scrape))
		defer cancel()
		result := h.scrapes.RunDiscovery(ctx, source)
		if !result.Success {
			h.logger.Error("triggered discovery failed",
				zap.String("source", source), zap.String("message", result.Message))
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"message": "sitemap refresh started", "source": source})
}

func (h *Handler) triggerBatch(c *gin.Context) {
	source := c.Param("source")
	if err := h.scrapes.ValidateSource(source); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout(h.scrape))
		defer cancel()
		result := h.scrapes.RunBatch(ctx, source)
		if !result.Success {
			h.logger.Error("triggered batch failed",
				zap.String("source", source), zap.String("message", result.Message))
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"message": "batch scan started", "source": source})
}

func (h *Handler) triggerSingleProduct(c *gin.Context) {
	source := c.Param("source")
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product ID"})
		return
	}
	if err := h.scrapes.ValidateSource(source); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		result := h.scrapes.RunSingleProduct(ctx, source, productID)
		if !result.Success {
			h.logger.Error("triggered product scan failed",
				zap.String("source", source),
				zap.Int64("product_id", productID),
				zap.String("message", result.Message))
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"message": "product scan started", "source": source, "product_id": productID})
}

func (h *Handler) priceHistory(c *gin.Context) {
	source := c.Param("source")
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product ID"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	history, err := h.prices.History(c.Request.Context(), productID, source, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": productID, "source": source, "history": history})
}

func (h *Handler) priceTrend(c *gin.Context) {
	source := c.Param("source")
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product ID"})
		return
	}
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))

	trend, err := h.prices.Trend(c.Request.Context(), productID, source, days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	pct, err := h.prices.ChangePercentage(c.Request.Context(), productID, source, days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	avg, err := h.prices.AveragePrice(c.Request.Context(), productID, source, days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id":        productID,
		"source":            source,
		"days":              days,
		"trend":             trend,
		"change_percentage": pct,
		"average_price":     avg,
	})
}

func (h *Handler) priceChanges(c *gin.Context) {
	source := c.Query("source")
	if source == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source query parameter is required"})
		return
	}
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	changes, err := h.prices.ChangesSince(c.Request.Context(), source, days, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	count, err := h.prices.ChangeCount(c.Request.Context(), source, days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": source, "days": days, "total": count, "changes": changes})
}

func (h *Handler) queueStats(c *gin.Context) {
	source := c.Param("source")
	stats, err := h.queues.Stats(c.Request.Context(), source)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": source, "stats": stats})
}

func (h *Handler) highPriority(c *gin.Context) {
	source := c.Param("source")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	entries, err := h.queues.HighPriority(c.Request.Context(), source, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": source, "entries": entries})
}

func (h *Handler) resetErrors(c *gin.Context) {
	source := c.Param("source")
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product ID"})
		return
	}

	ok, err := h.queues.ResetError(c.Request.Context(), productID, source)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "queue entry not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "error count reset"})
}

func (h *Handler) clearQueue(c *gin.Context) {
	source := c.Param("source")
	deleted, err := h.queues.Clear(c.Request.Context(), source)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": source, "deleted": deleted})
}

// prometheusMiddleware records request counts and latency per route
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).
			Observe(time.Since(start).Seconds())
	}
}
