package service

import (
	"context"
	"fmt"
	"time"

	"ProgressSync/internal/config"
	"ProgressSync/internal/interfaces"
	"ProgressSync/internal/metrics"
	"ProgressSync/internal/model"
	"ProgressSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// SyncResult 单个学生同步结果
type SyncResult struct {
	StudentID  uint64           `json:"student_id"`
	Handle     string           `json:"handle"`
	Status     model.SyncStatus `json:"status"`
	SyncedAt   time.Time        `json:"synced_at"`
	DurationMs int64            `json:"duration_ms"`
	Reconcile  *ReconcileResult `json:"reconcile"`
}

// BatchFailure 批量同步中失败的学生
type BatchFailure struct {
	StudentID uint64 `json:"student_id"`
	Handle    string `json:"handle"`
	Error     string `json:"error"`
}

// BatchResult 批量同步结果
type BatchResult struct {
	Total      int            `json:"total"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Failures   []BatchFailure `json:"failures"`
	Canceled   bool           `json:"canceled"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// SyncService 同步编排：单个学生（手动触发）或全部活跃学生（定时/手动批量）
type SyncService struct {
	judge      interfaces.JudgeClient
	students   repository.StudentRepository
	reconciler *Reconciler
	metrics    *metrics.Recorder
	logger     *logrus.Logger

	pause            time.Duration
	staleAfter       time.Duration
	submissionsCount int

	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	afterBatch func(ctx context.Context, res *BatchResult)
}

// NewSyncService 创建同步服务
func NewSyncService(judge interfaces.JudgeClient, students repository.StudentRepository, records repository.RecordRepository,
	cfg *config.Config, rec *metrics.Recorder, logger *logrus.Logger) *SyncService {
	return &SyncService{
		judge:            judge,
		students:         students,
		reconciler:       NewReconciler(students, records, logger),
		metrics:          rec,
		logger:           logger,
		pause:            cfg.Sync.StudentPause,
		staleAfter:       cfg.Sync.StaleAfter,
		submissionsCount: cfg.Judge.SubmissionsCount,
		now:              func() time.Time { return time.Now().UTC() },
		sleep:            sleepCtx,
	}
}

// OnBatchDone 注册批量同步完成后的回调（未被取消时才调用）
func (s *SyncService) OnBatchDone(fn func(ctx context.Context, res *BatchResult)) {
	s.afterBatch = fn
}

// SyncOne 同步单个学生。已在同步中返回 ErrSyncInProgress；学生不存在返回 ErrNotFound；
// 其余失败会把学生状态置为 error 并记录错误信息后返回。
func (s *SyncService) SyncOne(ctx context.Context, id uint64) (*SyncResult, error) {
	start := time.Now()
	student, err := s.students.GetByID(ctx, id)
	if err != nil {
		return nil, wrapRepoErr(err, fmt.Sprintf("student %d", id))
	}
	log := s.logger.WithFields(logrus.Fields{"student_id": id, "handle": student.CodeforcesHandle})

	acquired, err := s.students.TryMarkSyncing(ctx, id, s.staleBefore())
	if err != nil {
		return nil, wrapRepoErr(err, fmt.Sprintf("student %d", id))
	}
	if !acquired {
		s.metrics.ObserveSync(metrics.OutcomeBusy, time.Since(start))
		return nil, fmt.Errorf("%w: student %d", ErrSyncInProgress, id)
	}
	log.Info("开始同步学生数据")

	result, err := s.syncLocked(ctx, student)
	if err != nil {
		// 请求被取消时也要把状态落库，否则会一直停在 syncing
		if markErr := s.students.MarkSyncError(context.WithoutCancel(ctx), id, err.Error()); markErr != nil {
			log.WithError(markErr).Error("记录同步失败状态失败")
		}
		s.metrics.ObserveSync(metrics.OutcomeError, time.Since(start))
		log.WithError(err).Error("同步学生数据失败")
		return nil, err
	}

	syncedAt := s.now()
	if err := s.students.MarkSyncSuccess(context.WithoutCancel(ctx), id, syncedAt); err != nil {
		s.metrics.ObserveSync(metrics.OutcomeError, time.Since(start))
		return nil, wrapRepoErr(err, "记录同步成功状态失败")
	}
	s.metrics.ObserveSync(metrics.OutcomeSuccess, time.Since(start))
	s.recordReconcile(result)

	elapsed := time.Since(start)
	log.WithFields(logrus.Fields{
		"elapsed":   elapsed.String(),
		"reconcile": result.String(),
	}).Info("学生数据同步完成")

	return &SyncResult{
		StudentID:  id,
		Handle:     student.CodeforcesHandle,
		Status:     model.SyncSuccess,
		SyncedAt:   syncedAt,
		DurationMs: elapsed.Milliseconds(),
		Reconcile:  result,
	}, nil
}

// syncLocked 拉取三类数据并对账；调用方已持有 syncing 状态
func (s *SyncService) syncLocked(ctx context.Context, student *model.Student) (*ReconcileResult, error) {
	handle := student.CodeforcesHandle

	profile, err := s.judge.FetchProfile(ctx, handle)
	if err != nil {
		return nil, wrapJudgeErr(err, handle)
	}
	ratings, err := s.judge.FetchRatingHistory(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("拉取 %s 积分历史失败: %w", handle, err)
	}
	submissions, err := s.judge.FetchSubmissions(ctx, handle, 1, s.submissionsCount)
	if err != nil {
		return nil, fmt.Errorf("拉取 %s 提交记录失败: %w", handle, err)
	}

	return s.reconciler.Reconcile(ctx, student, &Snapshot{
		Profile:     profile,
		Ratings:     ratings,
		Submissions: submissions,
	})
}

// SyncAll 依次同步所有活跃学生，学生之间停顿 pause；单个失败只记录不中断。
// ctx 取消时在两个学生之间停止，返回已完成部分与 ctx 错误。
func (s *SyncService) SyncAll(ctx context.Context) (*BatchResult, error) {
	res := &BatchResult{StartedAt: s.now(), Failures: []BatchFailure{}}

	students, err := s.students.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询活跃学生失败: %w", err)
	}
	res.Total = len(students)
	s.logger.WithField("students", res.Total).Info("开始批量同步活跃学生")

	for i, student := range students {
		if i > 0 {
			if err := s.sleep(ctx, s.pause); err != nil {
				res.Canceled = true
				break
			}
		}
		if ctx.Err() != nil {
			res.Canceled = true
			break
		}

		if _, err := s.SyncOne(ctx, student.ID); err != nil {
			res.Failed++
			res.Failures = append(res.Failures, BatchFailure{
				StudentID: student.ID,
				Handle:    student.CodeforcesHandle,
				Error:     err.Error(),
			})
			s.logger.WithError(err).WithField("handle", student.CodeforcesHandle).Warn("批量同步：学生同步失败，继续下一个")
			continue
		}
		res.Succeeded++
	}

	res.FinishedAt = s.now()
	s.metrics.ObserveBatch(res.Succeeded, res.Failed, res.FinishedAt)
	s.logger.WithFields(logrus.Fields{
		"total":     res.Total,
		"succeeded": res.Succeeded,
		"failed":    res.Failed,
		"canceled":  res.Canceled,
		"elapsed":   res.FinishedAt.Sub(res.StartedAt).String(),
	}).Info("批量同步结束")

	if res.Canceled {
		return res, fmt.Errorf("批量同步被中断: %w", context.Cause(ctx))
	}
	if s.afterBatch != nil {
		s.afterBatch(ctx, res)
	}
	return res, nil
}

func (s *SyncService) recordReconcile(r *ReconcileResult) {
	if r == nil {
		return
	}
	s.metrics.AddUpserted("contest", r.ContestsUpserted)
	s.metrics.AddUpserted("problem", r.ProblemsUpserted)
	s.metrics.AddUpserted("activity", r.DaysUpserted)
	s.metrics.AddSkipped("contest", "error", r.ContestsFailed)
	s.metrics.AddSkipped("problem", "duplicate", r.ProblemsDuplicate)
	s.metrics.AddSkipped("problem", "error", r.ProblemsFailed)
	s.metrics.AddSkipped("activity", "error", r.DaysFailed)
}

// staleBefore 早于该时间仍处于 syncing 的行可被接管；staleAfter <= 0 时不接管
func (s *SyncService) staleBefore() time.Time {
	if s.staleAfter <= 0 {
		return time.Time{}
	}
	return s.now().Add(-s.staleAfter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
