package api

import (
	"net/http"

	"cert-checker/internal/service"

	"github.com/gin-gonic/gin"
)

type WatchHandler struct {
	Cron     *service.CronService
	Notifier *service.NotifierService
}

func NewWatchHandler(cron *service.CronService, notifier *service.NotifierService) *WatchHandler {
	return &WatchHandler{Cron: cron, Notifier: notifier}
}

// TriggerScan godoc
// @Summary Run the watchlist scan now, in the background
// @Router /api/v1/watch/scan [post]
func (h *WatchHandler) TriggerScan(c *gin.Context) {
	if err := h.Cron.StartScan(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "scan started"})
}

// LastScan godoc
// @Summary Result of the most recent watchlist scan
// @Router /api/v1/watch/last [get]
func (h *WatchHandler) LastScan(c *gin.Context) {
	report := h.Cron.LastScan()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scan has run yet"})
		return
	}

	resp := gin.H{"data": report}
	if next := h.Cron.NextRun(); !next.IsZero() {
		resp["next_run"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// TestNotification godoc
// @Summary Send a test message through the configured channels
// @Router /api/v1/watch/test-notify [post]
func (h *WatchHandler) TestNotification(c *gin.Context) {
	settings := h.Notifier.Settings()
	if !settings.AnyEnabled() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no notification channel configured"})
		return
	}
	if err := h.Notifier.SendTestMessage(c.Request.Context(), settings); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "test message sent"})
}
