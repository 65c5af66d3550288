package repository

import (
	"context"
	"time"

	"ProgressSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 各记录的业务唯一键与冲突时覆盖的字段
var (
	contestKeys    = []string{"student_id", "contest_id"}
	contestUpdates = []string{"handle", "contest_name", "rank", "old_rating", "new_rating", "rating_change", "rating_updated_at", "problems_solved", "updated_at"}

	problemKeys    = []string{"student_id", "contest_id", "problem_index"}
	problemUpdates = []string{"handle", "problem_name", "problem_rating", "tags", "verdict", "submitted_at", "submission_id", "language", "time_consumed_millis", "memory_consumed_bytes", "updated_at"}

	activityKeys    = []string{"student_id", "date"}
	activityUpdates = []string{"handle", "count", "accepted_count", "wrong_answer_count", "timeout_count", "other_count", "updated_at"}
)

// RecordCounts 某个学生的派生记录数量
type RecordCounts struct {
	Contests int64 `json:"contests"`
	Problems int64 `json:"problems"`
	Days     int64 `json:"days"`
}

// RecordRepository 比赛/题目/每日统计仓储。Upsert 语义：按唯一键不存在则插入，存在则覆盖指定字段
type RecordRepository interface {
	UpsertContest(ctx context.Context, c *model.ContestRecord) error
	// UpsertProblem submission_id 已被其他记录占用时返回 ErrDuplicate
	UpsertProblem(ctx context.Context, p *model.SolvedProblem) error
	UpsertActivity(ctx context.Context, a *model.DailyActivity) error

	// ListContests 按比赛时间倒序；since 为 nil 时不过滤
	ListContests(ctx context.Context, studentID uint64, since *time.Time) ([]*model.ContestRecord, error)
	// ListProblems 按 AC 时间倒序；since 为 nil 时不过滤
	ListProblems(ctx context.Context, studentID uint64, since *time.Time) ([]*model.SolvedProblem, error)
	// ListActivity 按日期正序；sinceDate 为空时不过滤
	ListActivity(ctx context.Context, studentID uint64, sinceDate string) ([]*model.DailyActivity, error)
	CountByStudent(ctx context.Context, studentID uint64) (*RecordCounts, error)
}

type recordRepository struct {
	db *gorm.DB
}

// NewRecordRepository 创建 RecordRepository 实例
func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

// upsert INSERT ... ON CONFLICT (keys) DO UPDATE SET updates，postgres 与 sqlite 通用
func upsert(ctx context.Context, db *gorm.DB, value interface{}, keys, updates []string) error {
	columns := make([]clause.Column, 0, len(keys))
	for _, k := range keys {
		columns = append(columns, clause.Column{Name: k})
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   columns,
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(value).Error
	return translate(err)
}

func (r *recordRepository) UpsertContest(ctx context.Context, c *model.ContestRecord) error {
	c.RatingChange = c.NewRating - c.OldRating
	return upsert(ctx, r.db, c, contestKeys, contestUpdates)
}

func (r *recordRepository) UpsertProblem(ctx context.Context, p *model.SolvedProblem) error {
	if p.Tags == nil {
		p.Tags = model.EncodeTags(nil)
	}
	return upsert(ctx, r.db, p, problemKeys, problemUpdates)
}

func (r *recordRepository) UpsertActivity(ctx context.Context, a *model.DailyActivity) error {
	return upsert(ctx, r.db, a, activityKeys, activityUpdates)
}

func (r *recordRepository) ListContests(ctx context.Context, studentID uint64, since *time.Time) ([]*model.ContestRecord, error) {
	db := r.db.WithContext(ctx).Where("student_id = ?", studentID)
	if since != nil {
		db = db.Where("rating_updated_at >= ?", *since)
	}
	var contests []*model.ContestRecord
	if err := db.Order("rating_updated_at DESC, contest_id DESC").Find(&contests).Error; err != nil {
		return nil, err
	}
	return contests, nil
}

func (r *recordRepository) ListProblems(ctx context.Context, studentID uint64, since *time.Time) ([]*model.SolvedProblem, error) {
	db := r.db.WithContext(ctx).Where("student_id = ? AND verdict = ?", studentID, model.VerdictOK)
	if since != nil {
		db = db.Where("submitted_at >= ?", *since)
	}
	var problems []*model.SolvedProblem
	if err := db.Order("submitted_at DESC, id DESC").Find(&problems).Error; err != nil {
		return nil, err
	}
	return problems, nil
}

func (r *recordRepository) ListActivity(ctx context.Context, studentID uint64, sinceDate string) ([]*model.DailyActivity, error) {
	db := r.db.WithContext(ctx).Where("student_id = ?", studentID)
	if sinceDate != "" {
		db = db.Where("date >= ?", sinceDate)
	}
	var days []*model.DailyActivity
	if err := db.Order("date ASC").Find(&days).Error; err != nil {
		return nil, err
	}
	return days, nil
}

func (r *recordRepository) CountByStudent(ctx context.Context, studentID uint64) (*RecordCounts, error) {
	var counts RecordCounts
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.ContestRecord{}).Where("student_id = ?", studentID).Count(&counts.Contests).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.SolvedProblem{}).Where("student_id = ?", studentID).Count(&counts.Problems).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.DailyActivity{}).Where("student_id = ?", studentID).Count(&counts.Days).Error; err != nil {
		return nil, err
	}
	return &counts, nil
}
