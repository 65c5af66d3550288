package service

import (
	"context"
	"fmt"
	"sync"

	"ProgressSync/internal/worker"

	"github.com/sirupsen/logrus"
)

// 后台任务名称
const (
	JobSyncAll = "sync_all"
	JobSyncOne = "sync_one"
)

// JobDispatcher 把同步请求提交到后台任务池，调用方拿到任务 ID 后可查询进度
type JobDispatcher struct {
	pool   *worker.Pool
	sync   *SyncService
	logger *logrus.Logger

	mu          sync.Mutex
	activeBatch string // 尚未结束的批量同步任务
}

// NewJobDispatcher 创建任务分发器
func NewJobDispatcher(pool *worker.Pool, sync *SyncService, logger *logrus.Logger) *JobDispatcher {
	return &JobDispatcher{pool: pool, sync: sync, logger: logger}
}

// EnqueueSyncAll 提交批量同步；已有未结束的批量任务时直接返回该任务 ID
func (d *JobDispatcher) EnqueueSyncAll(trigger string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.activeBatch != "" {
		if job, ok := d.pool.Get(d.activeBatch); ok && !job.Finished() {
			d.logger.WithFields(logrus.Fields{"job_id": job.ID, "trigger": trigger}).Info("批量同步已在队列中，复用现有任务")
			return job.ID, nil
		}
	}

	id, err := d.pool.Submit(JobSyncAll, func(ctx context.Context) (interface{}, error) {
		return d.sync.SyncAll(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("提交批量同步任务失败: %w", err)
	}
	d.activeBatch = id
	d.logger.WithFields(logrus.Fields{"job_id": id, "trigger": trigger}).Info("批量同步任务已提交")
	return id, nil
}

// EnqueueSyncOne 提交单个学生同步（注册后首次同步）
func (d *JobDispatcher) EnqueueSyncOne(studentID uint64) (string, error) {
	id, err := d.pool.Submit(JobSyncOne, func(ctx context.Context) (interface{}, error) {
		res, err := d.sync.SyncOne(ctx, studentID)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return "", fmt.Errorf("提交学生 %d 同步任务失败: %w", studentID, err)
	}
	d.logger.WithFields(logrus.Fields{"job_id": id, "student_id": studentID}).Debug("学生同步任务已提交")
	return id, nil
}

// Job 查询任务状态
func (d *JobDispatcher) Job(id string) (worker.Job, error) {
	job, ok := d.pool.Get(id)
	if !ok {
		return worker.Job{}, fmt.Errorf("%w: job %s", ErrNotFound, id)
	}
	return job, nil
}
