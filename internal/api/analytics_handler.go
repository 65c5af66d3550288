package api

import (
	"net/http"

	"ProgressSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AnalyticsHandler 看板统计接口
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
	reminders *service.ReminderService
	logger    *logrus.Logger
}

// NewAnalyticsHandler 创建 AnalyticsHandler；reminders 为 nil 时提醒接口返回 503
func NewAnalyticsHandler(analytics *service.AnalyticsService, reminders *service.ReminderService, logger *logrus.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, reminders: reminders, logger: logger}
}

// Dashboard GET /api/analytics/dashboard
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	dash, err := h.analytics.Dashboard(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "Dashboard", err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

// RatingDistribution GET /api/analytics/rating-distribution
func (h *AnalyticsHandler) RatingDistribution(c *gin.Context) {
	ranges, err := h.analytics.RatingDistribution(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "RatingDistribution", err)
		return
	}
	c.JSON(http.StatusOK, ranges)
}

// PerformanceTrends GET /api/analytics/performance-trends?months=12
func (h *AnalyticsHandler) PerformanceTrends(c *gin.Context) {
	months, ok := queryInt(c, "months")
	if !ok {
		return
	}
	trends, err := h.analytics.PerformanceTrends(c.Request.Context(), months)
	if err != nil {
		respondError(c, h.logger, "PerformanceTrends", err)
		return
	}
	c.JSON(http.StatusOK, trends)
}

// SendReminders 立即给不活跃学生发送提醒
// POST /api/notifications/reminders
func (h *AnalyticsHandler) SendReminders(c *gin.Context) {
	if h.reminders == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reminders are not configured"})
		return
	}
	res, err := h.reminders.SendReminders(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "SendReminders", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
