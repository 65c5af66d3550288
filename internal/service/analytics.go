package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ProgressSync/internal/model"
	"ProgressSync/internal/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// 积分分布的分段边界（左闭右开），超出范围的归入 Other
var ratingBoundaries = []int{0, 1200, 1400, 1600, 1900, 2100, 2300, 2400, 2600, 3000, 4000}

const (
	weeklyDays          = 7
	defaultTrendMonths  = 12
	maxTrendMonths      = 120
	otherRangeLabel     = "Other"
	weeklyDateLabelForm = "Jan 02"
)

// DashboardStats 看板顶部统计
type DashboardStats struct {
	TotalStudents    int   `json:"total_students"`
	ActiveStudents   int   `json:"active_students"`
	InactiveStudents int   `json:"inactive_students"`
	AverageRating    int   `json:"average_rating"`
	RecentActivity   int64 `json:"recent_activity"` // 最近 7 天提交数
	TotalContests    int64 `json:"total_contests"`
	TotalSolved      int64 `json:"total_solved"`
}

// WeeklyActivity 最近 7 天中的一天
type WeeklyActivity struct {
	Date        string `json:"date"` // Jan 02
	Day         string `json:"day"`  // 2006-01-02
	Submissions int64  `json:"submissions"`
	Problems    int64  `json:"problems"`
	Contests    int    `json:"contests"`
}

// Dashboard 看板数据
type Dashboard struct {
	Stats          DashboardStats   `json:"stats"`
	WeeklyActivity []WeeklyActivity `json:"weekly_activity"`
}

// RatingRange 积分分布中的一段
type RatingRange struct {
	Label    string   `json:"label"`
	Min      int      `json:"min"`
	Max      int      `json:"max"` // 不含
	Count    int      `json:"count"`
	Students []string `json:"students"`
}

// TrendPoint 按最近提交月份分组的表现
type TrendPoint struct {
	Year           int     `json:"year"`
	Month          int     `json:"month"`
	Label          string  `json:"label"`
	AverageRating  float64 `json:"average_rating"`
	ActiveStudents int     `json:"active_students"`
	TotalStudents  int     `json:"total_students"`
}

// AnalyticsService 看板统计
type AnalyticsService struct {
	repo   repository.AnalyticsRepository
	logger *logrus.Logger
	now    func() time.Time
}

// NewAnalyticsService 创建统计服务
func NewAnalyticsService(repo repository.AnalyticsRepository, logger *logrus.Logger) *AnalyticsService {
	return &AnalyticsService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Dashboard 汇总学生数、平均积分与最近 7 天（含今天）的活动，缺失的日期补零
func (s *AnalyticsService) Dashboard(ctx context.Context) (*Dashboard, error) {
	today := s.now().Truncate(24 * time.Hour)
	first := today.AddDate(0, 0, -(weeklyDays - 1))

	var (
		students []repository.StudentRatingRow
		totals   []repository.DailyTotal
		contests []time.Time
		out      Dashboard
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		students, err = s.repo.StudentRatings(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		totals, err = s.repo.ActivityTotalsSince(gctx, first.Format(model.DateLayout))
		return err
	})
	g.Go(func() error {
		var err error
		contests, err = s.repo.ContestTimesSince(gctx, first)
		return err
	})
	g.Go(func() error {
		var err error
		out.Stats.TotalContests, err = s.repo.CountContests(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		out.Stats.TotalSolved, err = s.repo.CountSolved(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("查询看板数据失败: %w", err)
	}

	var ratingSum int64
	for _, st := range students {
		if st.IsActive {
			out.Stats.ActiveStudents++
		}
		ratingSum += int64(st.CurrentRating)
	}
	out.Stats.TotalStudents = len(students)
	out.Stats.InactiveStudents = out.Stats.TotalStudents - out.Stats.ActiveStudents
	out.Stats.AverageRating = int(ratio(ratingSum, int64(len(students)), 0))

	byDay := make(map[string]repository.DailyTotal, len(totals))
	for _, t := range totals {
		byDay[t.Date] = t
	}
	contestsByDay := make(map[string]int)
	for _, at := range contests {
		contestsByDay[at.UTC().Format(model.DateLayout)]++
	}

	out.WeeklyActivity = make([]WeeklyActivity, 0, weeklyDays)
	for i := 0; i < weeklyDays; i++ {
		day := first.AddDate(0, 0, i)
		key := day.Format(model.DateLayout)
		t := byDay[key]
		out.Stats.RecentActivity += t.Submissions
		out.WeeklyActivity = append(out.WeeklyActivity, WeeklyActivity{
			Date:        day.Format(weeklyDateLabelForm),
			Day:         key,
			Submissions: t.Submissions,
			Problems:    t.Accepted,
			Contests:    contestsByDay[key],
		})
	}
	return &out, nil
}

// RatingDistribution 当前积分分布；所有分段都会返回，Other 仅在非空时返回
func (s *AnalyticsService) RatingDistribution(ctx context.Context) ([]RatingRange, error) {
	students, err := s.repo.StudentRatings(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询学生积分失败: %w", err)
	}

	ranges := make([]RatingRange, 0, len(ratingBoundaries))
	for i := 0; i+1 < len(ratingBoundaries); i++ {
		lo, hi := ratingBoundaries[i], ratingBoundaries[i+1]
		ranges = append(ranges, RatingRange{
			Label:    fmt.Sprintf("%d-%d", lo, hi-1),
			Min:      lo,
			Max:      hi,
			Students: []string{},
		})
	}
	other := RatingRange{Label: otherRangeLabel, Students: []string{}}

	for _, st := range students {
		idx := bucketIndex(st.CurrentRating)
		if idx < 0 {
			other.Count++
			other.Students = append(other.Students, st.Name)
			continue
		}
		ranges[idx].Count++
		ranges[idx].Students = append(ranges[idx].Students, st.Name)
	}
	if other.Count > 0 {
		ranges = append(ranges, other)
	}
	return ranges, nil
}

// bucketIndex 返回 rating 所在分段下标，不在任何分段时返回 -1
func bucketIndex(rating int) int {
	if rating < ratingBoundaries[0] || rating >= ratingBoundaries[len(ratingBoundaries)-1] {
		return -1
	}
	// 第一个大于 rating 的边界的前一段
	return sort.SearchInts(ratingBoundaries, rating+1) - 1
}

// PerformanceTrends 按最近提交月份分组，返回最近 months 个月（升序）；没有提交的学生不计入
func (s *AnalyticsService) PerformanceTrends(ctx context.Context, months int) ([]TrendPoint, error) {
	if months == 0 {
		months = defaultTrendMonths
	}
	if months < 0 || months > maxTrendMonths {
		return nil, fmt.Errorf("%w: months must be between 1 and %d", ErrValidation, maxTrendMonths)
	}

	students, err := s.repo.StudentRatings(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询学生积分失败: %w", err)
	}

	type acc struct {
		year, month   int
		ratingSum     int64
		active, total int
	}
	groups := make(map[int]*acc)
	for _, st := range students {
		if st.LastSubmissionAt == nil {
			continue
		}
		at := st.LastSubmissionAt.UTC()
		key := at.Year()*100 + int(at.Month())
		a, ok := groups[key]
		if !ok {
			a = &acc{year: at.Year(), month: int(at.Month())}
			groups[key] = a
		}
		a.ratingSum += int64(st.CurrentRating)
		a.total++
		if st.IsActive {
			a.active++
		}
	}

	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	if len(keys) > months {
		keys = keys[len(keys)-months:]
	}

	trends := make([]TrendPoint, 0, len(keys))
	for _, k := range keys {
		a := groups[k]
		trends = append(trends, TrendPoint{
			Year:           a.year,
			Month:          a.month,
			Label:          fmt.Sprintf("%04d-%02d", a.year, a.month),
			AverageRating:  ratio(a.ratingSum, int64(a.total), 2),
			ActiveStudents: a.active,
			TotalStudents:  a.total,
		})
	}
	return trends, nil
}
