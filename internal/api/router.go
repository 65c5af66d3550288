package api

import (
	"ProgressSync/internal/config"
	"ProgressSync/internal/metrics"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RouterConfig 路由依赖；handler 为 nil 时不注册对应路由
type RouterConfig struct {
	Server  config.ServerConfig
	Logger  *logrus.Logger
	Metrics *metrics.Recorder

	Students   *StudentHandler
	Sync       *SyncHandler
	Codeforces *CodeforcesHandler
	Analytics  *AnalyticsHandler
	Health     *HealthHandler
}

// NewRouter 注册全部 API 路由
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(cfg.Logger))
	r.Use(CORS(cfg.Server.CORSOrigins))
	if cfg.Metrics != nil {
		r.Use(Metrics(cfg.Metrics))
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	// 注册pprof 方便调试和监测性能问题
	if cfg.Server.EnablePprof {
		pprof.Register(r)
	}

	api := r.Group("/api")
	if cfg.Health != nil {
		api.GET("/health", cfg.Health.Health)
	}

	students := api.Group("/students")
	if cfg.Students != nil {
		students.GET("", cfg.Students.List)
		students.POST("", cfg.Students.Create)
		students.GET("/:id", cfg.Students.Get)
		students.PUT("/:id", cfg.Students.Update)
		students.DELETE("/:id", cfg.Students.Delete)
		students.GET("/:id/contests", cfg.Students.Contests)
		students.GET("/:id/problems", cfg.Students.Problems)
	}

	codeforces := api.Group("/codeforces")
	if cfg.Codeforces != nil {
		codeforces.GET("/verify/:handle", cfg.Codeforces.Verify)
	}
	if cfg.Sync != nil {
		students.POST("/:id/sync", cfg.Sync.SyncStudent)
		codeforces.POST("/sync-all", cfg.Sync.SyncAll)
		codeforces.GET("/sync-jobs/:job_id", cfg.Sync.SyncJob)
	}

	if cfg.Analytics != nil {
		analytics := api.Group("/analytics")
		analytics.GET("/dashboard", cfg.Analytics.Dashboard)
		analytics.GET("/rating-distribution", cfg.Analytics.RatingDistribution)
		analytics.GET("/performance-trends", cfg.Analytics.PerformanceTrends)
		api.POST("/notifications/reminders", cfg.Analytics.SendReminders)
	}
	return r
}
