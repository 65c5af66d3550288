package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HealthHandler 健康检查
type HealthHandler struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewHealthHandler 创建 HealthHandler
func NewHealthHandler(db *gorm.DB, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

// Health 数据库不可用时返回 503
// GET /api/health
func (h *HealthHandler) Health(c *gin.Context) {
	status, code, database := "OK", http.StatusOK, "Connected"
	if err := h.ping(c.Request.Context()); err != nil {
		h.logger.WithError(err).Warn("健康检查：数据库不可用")
		status, code, database = "DEGRADED", http.StatusServiceUnavailable, "Disconnected"
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  database,
	})
}

func (h *HealthHandler) ping(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
