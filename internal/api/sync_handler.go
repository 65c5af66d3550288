package api

import (
	"net/http"

	"ProgressSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SyncHandler 手动触发同步
type SyncHandler struct {
	syncService *service.SyncService
	dispatcher  *service.JobDispatcher
	logger      *logrus.Logger
}

// NewSyncHandler 创建 SyncHandler
func NewSyncHandler(syncService *service.SyncService, dispatcher *service.JobDispatcher, logger *logrus.Logger) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

// SyncStudent 同步单个学生，等待完成后返回结果
// POST /api/students/:id/sync
func (h *SyncHandler) SyncStudent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	result, err := h.syncService.SyncOne(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "SyncStudent", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SyncAll 提交批量同步任务，立即返回任务 ID
// POST /api/codeforces/sync-all
func (h *SyncHandler) SyncAll(c *gin.Context) {
	jobID, err := h.dispatcher.EnqueueSyncAll("manual")
	if err != nil {
		h.logger.WithError(err).Error("提交批量同步失败")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Sync started in background",
		"status":  "started",
		"job_id":  jobID,
	})
}

// SyncJob 查询后台同步任务状态
// GET /api/codeforces/sync-jobs/:job_id
func (h *SyncHandler) SyncJob(c *gin.Context) {
	job, err := h.dispatcher.Job(c.Param("job_id"))
	if err != nil {
		respondError(c, h.logger, "SyncJob", err)
		return
	}
	c.JSON(http.StatusOK, job)
}
