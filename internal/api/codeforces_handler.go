package api

import (
	"errors"
	"net/http"

	"ProgressSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CodeforcesHandler 评测平台相关接口
type CodeforcesHandler struct {
	verify *service.VerifyService
	logger *logrus.Logger
}

// NewCodeforcesHandler 创建 CodeforcesHandler
func NewCodeforcesHandler(verify *service.VerifyService, logger *logrus.Logger) *CodeforcesHandler {
	return &CodeforcesHandler{verify: verify, logger: logger}
}

// Verify 校验 handle 是否存在
// GET /api/codeforces/verify/:handle
func (h *CodeforcesHandler) Verify(c *gin.Context) {
	info, err := h.verify.Verify(c.Request.Context(), c.Param("handle"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"valid": false,
				"error": "Codeforces handle not found",
			})
			return
		}
		respondError(c, h.logger, "VerifyHandle", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":     true,
		"user_info": info,
	})
}
