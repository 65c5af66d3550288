package service

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// batchTrigger 提交一次批量同步
type batchTrigger interface {
	EnqueueSyncAll(trigger string) (string, error)
}

// Scheduler 按固定间隔触发批量同步。任务本身在后台任务池中执行，
// 与手动触发的批量同步共用一个队列，不会并发。
type Scheduler struct {
	interval   time.Duration
	runOnStart bool
	trigger    batchTrigger
	logger     *logrus.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler 创建调度器
func NewScheduler(trigger batchTrigger, interval time.Duration, runOnStart bool, logger *logrus.Logger) *Scheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{
		interval:   interval,
		runOnStart: runOnStart,
		trigger:    trigger,
		logger:     logger,
	}
}

// Start 启动调度（重复调用无效）
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)
	s.logger.WithField("interval", s.interval.String()).Info("定时同步已启动")
}

// Stop 停止调度，等待调度 goroutine 退出（不等待已提交的任务）
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.logger.Info("定时同步已停止")
}

func (s *Scheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()
	if s.runOnStart {
		s.fire("startup")
	}
	for {
		select {
		case <-ticker.C:
			s.fire("schedule")
		case <-stop:
			return
		}
	}
}

// fire 提交失败只记录日志，不影响下一次调度
func (s *Scheduler) fire(reason string) {
	id, err := s.trigger.EnqueueSyncAll(reason)
	if err != nil {
		s.logger.WithError(err).WithField("trigger", reason).Error("定时同步提交失败")
		return
	}
	s.logger.WithFields(logrus.Fields{"job_id": id, "trigger": reason}).Info("定时同步已提交")
}
