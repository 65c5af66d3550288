package service

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"time"

	"ProgressSync/internal/model"
	"ProgressSync/internal/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultAvatar 新学生的默认头像，同步到平台头像后会被覆盖
const DefaultAvatar = "https://images.pexels.com/photos/2379005/pexels-photo-2379005.jpeg?auto=compress&cs=tinysrgb&w=150&h=150&fit=crop"

// 历史筛选的默认天数
const defaultHistoryDays = 365

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]{3,24}$`)

// syncEnqueuer 注册后提交首次同步
type syncEnqueuer interface {
	EnqueueSyncOne(studentID uint64) (string, error)
}

// RegisterInput 注册学生的请求体
type RegisterInput struct {
	Name               string `json:"name"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	CodeforcesHandle   string `json:"codeforces_handle"`
	EmailNotifications *bool  `json:"email_notifications"`
	Avatar             string `json:"avatar"`
}

// UpdateInput 编辑学生，nil 字段不修改
type UpdateInput struct {
	Name               *string `json:"name"`
	Email              *string `json:"email"`
	Phone              *string `json:"phone"`
	CodeforcesHandle   *string `json:"codeforces_handle"`
	EmailNotifications *bool   `json:"email_notifications"`
	Avatar             *string `json:"avatar"`
}

// RegisteredStudent 注册结果，附带首次同步的任务 ID
type RegisteredStudent struct {
	*model.Student
	SyncJobID string `json:"sync_job_id,omitempty"`
}

// StudentQuery 列表查询参数
type StudentQuery struct {
	Search string
	Status string // active / inactive / all
	Page   int
	Limit  int
}

// StudentPage 分页结果
type StudentPage struct {
	Students    []*model.Student `json:"students"`
	Total       int64            `json:"total"`
	TotalPages  int              `json:"total_pages"`
	CurrentPage int              `json:"current_page"`
}

// StudentDetail 学生详情页数据
type StudentDetail struct {
	Student            *model.Student         `json:"student"`
	Contests           []*model.ContestRecord `json:"contests"`
	Problems           []*model.SolvedProblem `json:"problems"`
	SubmissionActivity []*model.DailyActivity `json:"submission_activity"`
}

// ContestHistory 最近 N 天的比赛记录
type ContestHistory struct {
	Days     int                    `json:"days"`
	Contests []*model.ContestRecord `json:"contests"`
}

// RatingBucket 题目难度分段统计（每 100 分一档）
type RatingBucket struct {
	Rating int `json:"rating"`
	Count  int `json:"count"`
}

// ProblemStats 最近 N 天的解题统计
type ProblemStats struct {
	Days           int                    `json:"days"`
	TotalSolved    int                    `json:"total_solved"`
	AverageRating  float64                `json:"average_rating"`
	AveragePerDay  float64                `json:"average_per_day"`
	HardestProblem *model.SolvedProblem   `json:"hardest_problem"`
	RatingBuckets  []RatingBucket         `json:"rating_buckets"`
	Activity       []*model.DailyActivity `json:"submission_activity"`
	Problems       []*model.SolvedProblem `json:"problems"`
}

// StudentService 学生的增删改查与详情统计
type StudentService struct {
	students repository.StudentRepository
	records  repository.RecordRepository
	enqueuer syncEnqueuer
	logger   *logrus.Logger
	now      func() time.Time
}

// NewStudentService 创建学生服务；enqueuer 为 nil 时注册后不触发同步
func NewStudentService(students repository.StudentRepository, records repository.RecordRepository,
	enqueuer syncEnqueuer, logger *logrus.Logger) *StudentService {
	return &StudentService{
		students: students,
		records:  records,
		enqueuer: enqueuer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register 注册学生并提交首次同步；handle 或邮箱已存在返回 ErrConflict
func (s *StudentService) Register(ctx context.Context, in RegisterInput) (*RegisteredStudent, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.CodeforcesHandle = strings.TrimSpace(in.CodeforcesHandle)
	if err := validateRegister(in); err != nil {
		return nil, err
	}

	if _, err := s.students.GetByHandle(ctx, in.CodeforcesHandle); err == nil {
		return nil, fmt.Errorf("%w: codeforces handle %s", ErrConflict, in.CodeforcesHandle)
	} else if !isRepoNotFound(err) {
		return nil, wrapRepoErr(err, "查询学生失败")
	}
	if _, err := s.students.GetByEmail(ctx, in.Email); err == nil {
		return nil, fmt.Errorf("%w: email %s", ErrConflict, in.Email)
	} else if !isRepoNotFound(err) {
		return nil, wrapRepoErr(err, "查询学生失败")
	}

	notify := true
	if in.EmailNotifications != nil {
		notify = *in.EmailNotifications
	}
	avatar := strings.TrimSpace(in.Avatar)
	if avatar == "" {
		avatar = DefaultAvatar
	}
	student := &model.Student{
		Name:               in.Name,
		Email:              in.Email,
		Phone:              in.Phone,
		CodeforcesHandle:   in.CodeforcesHandle,
		IsActive:           true,
		EmailNotifications: notify,
		Avatar:             avatar,
		JoinDate:           s.now(),
		SyncStatus:         model.SyncPending,
	}
	// 并发注册时唯一索引兜底
	if err := s.students.Create(ctx, student); err != nil {
		return nil, wrapRepoErr(err, "student "+in.CodeforcesHandle)
	}
	log := s.logger.WithFields(logrus.Fields{"student_id": student.ID, "handle": student.CodeforcesHandle})
	log.Info("学生注册成功")

	out := &RegisteredStudent{Student: student}
	if s.enqueuer != nil {
		jobID, err := s.enqueuer.EnqueueSyncOne(student.ID)
		if err != nil {
			// 定时同步会补上
			log.WithError(err).Warn("提交首次同步失败")
		} else {
			out.SyncJobID = jobID
		}
	}
	return out, nil
}

func validateRegister(in RegisterInput) error {
	switch {
	case in.Name == "":
		return fmt.Errorf("%w: name is required", ErrValidation)
	case in.Email == "":
		return fmt.Errorf("%w: email is required", ErrValidation)
	case in.Phone == "":
		return fmt.Errorf("%w: phone is required", ErrValidation)
	case in.CodeforcesHandle == "":
		return fmt.Errorf("%w: codeforces_handle is required", ErrValidation)
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if !handlePattern.MatchString(in.CodeforcesHandle) {
		return fmt.Errorf("%w: invalid codeforces handle %q", ErrValidation, in.CodeforcesHandle)
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email %q", ErrValidation, email)
	}
	return nil
}

// Get 按 ID 查询学生
func (s *StudentService) Get(ctx context.Context, id uint64) (*model.Student, error) {
	student, err := s.students.GetByID(ctx, id)
	if err != nil {
		return nil, wrapRepoErr(err, fmt.Sprintf("student %d", id))
	}
	return student, nil
}

// List 分页查询，limit 默认 50
func (s *StudentService) List(ctx context.Context, q StudentQuery) (*StudentPage, error) {
	status := strings.ToLower(strings.TrimSpace(q.Status))
	switch status {
	case "", "all":
		status = ""
	case "active", "inactive":
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, q.Status)
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	students, total, err := s.students.List(ctx, repository.StudentFilter{
		Search:   q.Search,
		Status:   status,
		Page:     page,
		PageSize: limit,
	})
	if err != nil {
		return nil, wrapRepoErr(err, "查询学生列表失败")
	}
	if students == nil {
		students = []*model.Student{}
	}
	return &StudentPage{
		Students:    students,
		Total:       total,
		TotalPages:  int(math.Ceil(float64(total) / float64(limit))),
		CurrentPage: page,
	}, nil
}

// Update 编辑学生资料；handle 不可修改
func (s *StudentService) Update(ctx context.Context, id uint64, in UpdateInput) (*model.Student, error) {
	current, err := s.students.GetByID(ctx, id)
	if err != nil {
		return nil, wrapRepoErr(err, fmt.Sprintf("student %d", id))
	}
	if in.CodeforcesHandle != nil && strings.TrimSpace(*in.CodeforcesHandle) != current.CodeforcesHandle {
		return nil, fmt.Errorf("%w: codeforces handle cannot be changed", ErrValidation)
	}

	fields := make(map[string]interface{})
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
		}
		fields["name"] = name
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		fields["email"] = email
	}
	if in.Phone != nil {
		phone := strings.TrimSpace(*in.Phone)
		if phone == "" {
			return nil, fmt.Errorf("%w: phone cannot be empty", ErrValidation)
		}
		fields["phone"] = phone
	}
	if in.EmailNotifications != nil {
		fields["email_notifications"] = *in.EmailNotifications
	}
	if in.Avatar != nil {
		fields["avatar"] = strings.TrimSpace(*in.Avatar)
	}
	if len(fields) == 0 {
		return current, nil
	}

	if err := s.students.Update(ctx, id, fields); err != nil {
		return nil, wrapRepoErr(err, fmt.Sprintf("student %d", id))
	}
	s.logger.WithFields(logrus.Fields{"student_id": id, "fields": len(fields)}).Info("学生资料已更新")
	return s.Get(ctx, id)
}

// Delete 删除学生及其全部同步数据
func (s *StudentService) Delete(ctx context.Context, id uint64) error {
	if err := s.students.Delete(ctx, id); err != nil {
		return wrapRepoErr(err, fmt.Sprintf("student %d", id))
	}
	s.logger.WithField("student_id", id).Info("学生已删除")
	return nil
}

// Detail 学生详情：资料、全部比赛、已解题目、每日统计（并发查询）
func (s *StudentService) Detail(ctx context.Context, id uint64) (*StudentDetail, error) {
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &StudentDetail{Student: student}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		contests, err := s.records.ListContests(gctx, id, nil)
		detail.Contests = contests
		return err
	})
	g.Go(func() error {
		problems, err := s.records.ListProblems(gctx, id, nil)
		detail.Problems = problems
		return err
	})
	g.Go(func() error {
		days, err := s.records.ListActivity(gctx, id, "")
		detail.SubmissionActivity = days
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("查询学生 %d 详情失败: %w", id, err)
	}
	return detail, nil
}

// ContestHistory 最近 days 天的比赛（默认 365）
func (s *StudentService) ContestHistory(ctx context.Context, id uint64, days int) (*ContestHistory, error) {
	days, err := normalizeDays(days)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	since := s.now().AddDate(0, 0, -days)
	contests, err := s.records.ListContests(ctx, id, &since)
	if err != nil {
		return nil, fmt.Errorf("查询学生 %d 比赛失败: %w", id, err)
	}
	return &ContestHistory{Days: days, Contests: contests}, nil
}

// ProblemStats 最近 days 天的解题统计（默认 365）
func (s *StudentService) ProblemStats(ctx context.Context, id uint64, days int) (*ProblemStats, error) {
	days, err := normalizeDays(days)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	since := s.now().AddDate(0, 0, -days)

	var (
		problems []*model.SolvedProblem
		activity []*model.DailyActivity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		problems, err = s.records.ListProblems(gctx, id, &since)
		return err
	})
	g.Go(func() error {
		var err error
		activity, err = s.records.ListActivity(gctx, id, since.Format(model.DateLayout))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("查询学生 %d 解题记录失败: %w", id, err)
	}

	stats := summarizeProblems(problems, days)
	stats.Activity = activity
	return stats, nil
}

func normalizeDays(days int) (int, error) {
	if days == 0 {
		return defaultHistoryDays, nil
	}
	if days < 0 || days > 3650 {
		return 0, fmt.Errorf("%w: days must be between 1 and 3650", ErrValidation)
	}
	return days, nil
}

// summarizeProblems 无难度的题目不计入平均难度与分段
func summarizeProblems(problems []*model.SolvedProblem, days int) *ProblemStats {
	stats := &ProblemStats{
		Days:          days,
		TotalSolved:   len(problems),
		RatingBuckets: []RatingBucket{},
		Problems:      problems,
	}
	if stats.Problems == nil {
		stats.Problems = []*model.SolvedProblem{}
	}

	buckets := make(map[int]int)
	var (
		ratedSum   int64
		ratedCount int64
	)
	for _, p := range problems {
		if p.ProblemRating == nil {
			continue
		}
		rating := *p.ProblemRating
		ratedSum += int64(rating)
		ratedCount++
		buckets[rating/100*100]++
		if stats.HardestProblem == nil || rating > *stats.HardestProblem.ProblemRating {
			stats.HardestProblem = p
		}
	}
	if ratedCount > 0 {
		stats.AverageRating = ratio(ratedSum, ratedCount, 0)
	}
	stats.AveragePerDay = ratio(int64(len(problems)), int64(days), 2)

	for rating, count := range buckets {
		stats.RatingBuckets = append(stats.RatingBuckets, RatingBucket{Rating: rating, Count: count})
	}
	sort.Slice(stats.RatingBuckets, func(i, j int) bool {
		return stats.RatingBuckets[i].Rating < stats.RatingBuckets[j].Rating
	})
	return stats
}
