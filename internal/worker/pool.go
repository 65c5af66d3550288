// Package worker 进程内后台任务队列：固定数量的 goroutine 消费有界队列，任务状态可查询
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"ProgressSync/internal/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultWorkers   = 1
	defaultQueueSize = 64
	defaultHistory   = 200
)

var (
	// ErrQueueFull 队列已满，任务未入队
	ErrQueueFull = errors.New("job queue is full")
	// ErrClosed 队列已关闭
	ErrClosed = errors.New("job queue is closed")
	// ErrJobNotFound 任务不存在（或已被清出历史）
	ErrJobNotFound = errors.New("job not found")
)

// Status 任务状态
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Func 任务函数；ctx 在 Shutdown 超时后被取消
type Func func(ctx context.Context) (interface{}, error)

// Job 任务快照
type Job struct {
	ID         string      `json:"job_id"`
	Name       string      `json:"name"`
	Status     Status      `json:"status"`
	Error      string      `json:"error,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Finished 任务是否已结束
func (j Job) Finished() bool {
	return j.Status == StatusDone || j.Status == StatusFailed
}

type task struct {
	job  Job
	fn   Func
	done chan struct{}
}

// Pool 后台任务池
type Pool struct {
	workers   int
	queueSize int
	history   int
	logger    *logrus.Logger
	metrics   *metrics.Recorder

	queue  chan *task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	tasks    map[string]*task
	finished []string // 已结束任务 ID，按结束顺序，用于淘汰历史
	closed   bool
	started  bool
}

// Option 配置项
type Option func(*Pool)

// WithWorkers 并发 goroutine 数
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize 队列长度
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithHistory 保留的已结束任务数
func WithHistory(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.history = n
		}
	}
}

// WithLogger 日志实例
func WithLogger(logger *logrus.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics 指标
func WithMetrics(rec *metrics.Recorder) Option {
	return func(p *Pool) {
		p.metrics = rec
	}
}

// New 创建任务池，需调用 Start 后才会消费
func New(opts ...Option) *Pool {
	p := &Pool{
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
		history:   defaultHistory,
		logger:    logrus.StandardLogger(),
		tasks:     make(map[string]*task),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.queue = make(chan *task, p.queueSize)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// Start 启动消费 goroutine（重复调用无效）
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.loop(i)
	}
	p.logger.WithField("workers", p.workers).Info("后台任务池已启动")
}

// Submit 提交任务，返回任务 ID；队列满时不阻塞，直接返回 ErrQueueFull
func (p *Pool) Submit(name string, fn Func) (string, error) {
	t := &task{
		job: Job{
			ID:        uuid.NewString(),
			Name:      name,
			Status:    StatusQueued,
			CreatedAt: time.Now().UTC(),
		},
		fn:   fn,
		done: make(chan struct{}),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	select {
	case p.queue <- t:
	default:
		return "", ErrQueueFull
	}
	p.tasks[t.job.ID] = t
	p.metrics.JobsInFlight(1)
	return t.job.ID, nil
}

// Get 查询任务快照
func (p *Pool) Get(id string) (Job, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.tasks[id]
	if !ok {
		return Job{}, false
	}
	return t.job, true
}

// Wait 等待任务结束
func (p *Pool) Wait(ctx context.Context, id string) (Job, error) {
	p.mu.RLock()
	t, ok := p.tasks[id]
	p.mu.RUnlock()
	if !ok {
		return Job{}, ErrJobNotFound
	}
	select {
	case <-t.done:
		p.mu.RLock()
		job := t.job
		p.mu.RUnlock()
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Shutdown 停止接收新任务并等待已入队任务执行完；ctx 到期后取消正在执行的任务
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if !started {
		p.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("后台任务池关闭超时: %w", ctx.Err())
	}
}

func (p *Pool) loop(idx int) {
	defer p.wg.Done()
	for t := range p.queue {
		p.run(idx, t)
	}
}

func (p *Pool) run(idx int, t *task) {
	log := p.logger.WithFields(logrus.Fields{"job_id": t.job.ID, "job": t.job.Name, "worker": idx})

	p.mu.Lock()
	now := time.Now().UTC()
	t.job.Status = StatusRunning
	t.job.StartedAt = &now
	p.mu.Unlock()
	log.Debug("后台任务开始执行")

	result, err := p.call(t)

	p.mu.Lock()
	end := time.Now().UTC()
	t.job.FinishedAt = &end
	if err != nil {
		t.job.Status = StatusFailed
		t.job.Error = err.Error()
	} else {
		t.job.Status = StatusDone
	}
	t.job.Result = result
	p.finished = append(p.finished, t.job.ID)
	p.evictLocked()
	p.mu.Unlock()
	close(t.done)
	p.metrics.JobsInFlight(-1)

	if err != nil {
		log.WithError(err).Error("后台任务执行失败")
		return
	}
	log.WithField("elapsed", end.Sub(now).String()).Info("后台任务执行完成")
}

// call 执行任务函数，panic 转为错误
func (p *Pool) call(t *task) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("stack", string(debug.Stack())).Errorf("后台任务 panic: %v", r)
			err = fmt.Errorf("任务 panic: %v", r)
		}
	}()
	return t.fn(p.ctx)
}

// evictLocked 超过历史上限时淘汰最早结束的任务；调用方持有写锁
func (p *Pool) evictLocked() {
	for len(p.finished) > p.history {
		delete(p.tasks, p.finished[0])
		p.finished = p.finished[1:]
	}
}
