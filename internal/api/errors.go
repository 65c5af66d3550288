package api

import (
	"errors"
	"net/http"
	"strconv"

	"ProgressSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// statusFor 业务错误到 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError 写 {"error": msg}；5xx 记 error 日志，其余记 info
func respondError(c *gin.Context, logger *logrus.Logger, op string, err error) {
	status := statusFor(err)
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"op":     op,
		"status": status,
		"path":   c.Request.URL.Path,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("请求处理失败")
	} else {
		entry.Info("请求被拒绝")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// pathID 解析 :id，非法时已写 400
func pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid student id")
		return 0, false
	}
	return id, true
}

// queryInt 缺省返回 0；非整数时已写 400
func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "invalid "+key)
		return 0, false
	}
	return v, true
}
