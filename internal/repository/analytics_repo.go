package repository

import (
	"context"
	"time"

	"ProgressSync/internal/model"

	"gorm.io/gorm"
)

// StudentRatingRow 统计用的学生轻量视图，避免在 service 中依赖 gorm 标签
type StudentRatingRow struct {
	ID               uint64
	Name             string
	CurrentRating    int
	IsActive         bool
	LastSubmissionAt *time.Time
}

// DailyTotal 某日全体学生的提交合计
type DailyTotal struct {
	Date        string
	Submissions int64
	Accepted    int64
}

// AnalyticsRepository 面向看板的聚合查询；分组尽量在 Go 侧完成，兼容不同驱动
type AnalyticsRepository interface {
	// StudentRatings 全部学生的积分与活跃信息
	StudentRatings(ctx context.Context) ([]StudentRatingRow, error)
	// ActivityTotalsSince 按日期汇总 sinceDate（含）之后的提交
	ActivityTotalsSince(ctx context.Context, sinceDate string) ([]DailyTotal, error)
	// ContestTimesSince since 之后所有比赛记录的时间
	ContestTimesSince(ctx context.Context, since time.Time) ([]time.Time, error)
	CountContests(ctx context.Context) (int64, error)
	CountSolved(ctx context.Context) (int64, error)
}

type analyticsRepository struct {
	db *gorm.DB
}

// NewAnalyticsRepository 创建 AnalyticsRepository 实例
func NewAnalyticsRepository(db *gorm.DB) AnalyticsRepository {
	return &analyticsRepository{db: db}
}

func (r *analyticsRepository) StudentRatings(ctx context.Context) ([]StudentRatingRow, error) {
	var rows []StudentRatingRow
	err := r.db.WithContext(ctx).Model(&model.Student{}).
		Select("id, name, current_rating, is_active, last_submission_at").
		Order("id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *analyticsRepository) ActivityTotalsSince(ctx context.Context, sinceDate string) ([]DailyTotal, error) {
	var rows []DailyTotal
	err := r.db.WithContext(ctx).Model(&model.DailyActivity{}).
		Select("date, SUM(count) AS submissions, SUM(accepted_count) AS accepted").
		Where("date >= ?", sinceDate).
		Group("date").
		Order("date ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *analyticsRepository) ContestTimesSince(ctx context.Context, since time.Time) ([]time.Time, error) {
	var times []time.Time
	err := r.db.WithContext(ctx).Model(&model.ContestRecord{}).
		Where("rating_updated_at >= ?", since).
		Order("rating_updated_at ASC").
		Pluck("rating_updated_at", &times).Error
	if err != nil {
		return nil, err
	}
	return times, nil
}

func (r *analyticsRepository) CountContests(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.ContestRecord{}).Count(&n).Error
	return n, err
}

func (r *analyticsRepository) CountSolved(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.SolvedProblem{}).Count(&n).Error
	return n, err
}
