package api

import (
	"net/http"
	"strconv"

	"ProgressSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StudentHandler 学生管理接口
type StudentHandler struct {
	students *service.StudentService
	logger   *logrus.Logger
}

// NewStudentHandler 创建 StudentHandler
func NewStudentHandler(students *service.StudentService, logger *logrus.Logger) *StudentHandler {
	return &StudentHandler{students: students, logger: logger}
}

// List 学生列表
// GET /api/students?page=1&limit=50&search=alice&status=active
func (h *StudentHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	result, err := h.students.List(c.Request.Context(), service.StudentQuery{
		Search: c.Query("search"),
		Status: c.Query("status"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		respondError(c, h.logger, "ListStudents", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Create 注册学生，后台提交首次同步
// POST /api/students
func (h *StudentHandler) Create(c *gin.Context) {
	var in service.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	student, err := h.students.Register(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, "RegisterStudent", err)
		return
	}
	c.JSON(http.StatusCreated, student)
}

// Get 学生详情：资料、比赛、题目、每日统计
// GET /api/students/:id
func (h *StudentHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	detail, err := h.students.Detail(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "GetStudent", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// Update 编辑学生（handle 不可修改）
// PUT /api/students/:id
func (h *StudentHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in service.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	student, err := h.students.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, h.logger, "UpdateStudent", err)
		return
	}
	c.JSON(http.StatusOK, student)
}

// Delete 删除学生及其同步数据
// DELETE /api/students/:id
func (h *StudentHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.students.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "DeleteStudent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Student deleted successfully"})
}

// Contests 最近 N 天比赛
// GET /api/students/:id/contests?days=90
func (h *StudentHandler) Contests(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	days, ok := queryInt(c, "days")
	if !ok {
		return
	}
	history, err := h.students.ContestHistory(c.Request.Context(), id, days)
	if err != nil {
		respondError(c, h.logger, "ContestHistory", err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// Problems 最近 N 天解题统计
// GET /api/students/:id/problems?days=30
func (h *StudentHandler) Problems(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	days, ok := queryInt(c, "days")
	if !ok {
		return
	}
	stats, err := h.students.ProblemStats(c.Request.Context(), id, days)
	if err != nil {
		respondError(c, h.logger, "ProblemStats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
