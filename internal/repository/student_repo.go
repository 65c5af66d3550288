package repository

import (
	"context"
	"strings"
	"time"

	"ProgressSync/internal/model"

	"gorm.io/gorm"
)

// StudentFilter 学生列表筛选条件
type StudentFilter struct {
	Search   string // 姓名/邮箱/handle 模糊匹配（不区分大小写）
	Status   string // active / inactive，空为全部
	Page     int
	PageSize int
}

// StudentRepository 学生仓储接口
type StudentRepository interface {
	// Create 新建学生；handle 或 email 重复时返回 ErrDuplicate
	Create(ctx context.Context, s *model.Student) error
	GetByID(ctx context.Context, id uint64) (*model.Student, error)
	// GetByHandle handle 不区分大小写
	GetByHandle(ctx context.Context, handle string) (*model.Student, error)
	// GetByEmail email 不区分大小写
	GetByEmail(ctx context.Context, email string) (*model.Student, error)
	// List 分页查询，按最近提交时间倒序（无提交的排最后）
	List(ctx context.Context, filter StudentFilter) ([]*model.Student, int64, error)
	// ListActive is_active = true 的全部学生（批量同步用）
	ListActive(ctx context.Context) ([]*model.Student, error)
	// Update 按字段部分更新
	Update(ctx context.Context, id uint64, fields map[string]interface{}) error
	// UpdateProfile 对账第一步：一次性写回资料与派生字段
	UpdateProfile(ctx context.Context, id uint64, p model.ProfileUpdate) error
	// TryMarkSyncing 原子地把状态置为 syncing；已在同步中（且未超过 staleBefore）时返回 false
	TryMarkSyncing(ctx context.Context, id uint64, staleBefore time.Time) (bool, error)
	MarkSyncSuccess(ctx context.Context, id uint64, at time.Time) error
	MarkSyncError(ctx context.Context, id uint64, msg string) error
	// Delete 删除学生及其比赛、题目、每日统计
	Delete(ctx context.Context, id uint64) error
	// ListReminderCandidates 开启了邮件通知、inactiveBefore 之后无提交、remindedBefore 之后未被提醒过的学生
	ListReminderCandidates(ctx context.Context, inactiveBefore, remindedBefore time.Time) ([]*model.Student, error)
	MarkReminderSent(ctx context.Context, id uint64, at time.Time) error
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository 创建 StudentRepository 实例
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) Create(ctx context.Context, s *model.Student) error {
	return translate(r.db.WithContext(ctx).Create(s).Error)
}

func (r *studentRepository) GetByID(ctx context.Context, id uint64) (*model.Student, error) {
	var s model.Student
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *studentRepository) GetByHandle(ctx context.Context, handle string) (*model.Student, error) {
	var s model.Student
	err := r.db.WithContext(ctx).
		Where("LOWER(codeforces_handle) = ?", strings.ToLower(strings.TrimSpace(handle))).
		First(&s).Error
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *studentRepository) GetByEmail(ctx context.Context, email string) (*model.Student, error) {
	var s model.Student
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&s).Error
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *studentRepository) List(ctx context.Context, filter StudentFilter) ([]*model.Student, int64, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}

	db := r.db.WithContext(ctx).Model(&model.Student{})
	if kw := strings.ToLower(strings.TrimSpace(filter.Search)); kw != "" {
		like := "%" + kw + "%"
		db = db.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(codeforces_handle) LIKE ?", like, like, like)
	}
	switch filter.Status {
	case "active":
		db = db.Where("is_active = ?", true)
	case "inactive":
		db = db.Where("is_active = ?", false)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var students []*model.Student
	if err := db.
		Order("last_submission_at IS NULL, last_submission_at DESC, id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&students).Error; err != nil {
		return nil, 0, err
	}
	return students, total, nil
}

func (r *studentRepository) ListActive(ctx context.Context) ([]*model.Student, error) {
	var students []*model.Student
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&students).Error; err != nil {
		return nil, err
	}
	return students, nil
}

func (r *studentRepository) Update(ctx context.Context, id uint64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		_, err := r.GetByID(ctx, id)
		return err
	}
	res := r.db.WithContext(ctx).Model(&model.Student{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *studentRepository) UpdateProfile(ctx context.Context, id uint64, p model.ProfileUpdate) error {
	fields := map[string]interface{}{
		"current_rating":     p.CurrentRating,
		"max_rating":         p.MaxRating,
		"last_submission_at": p.LastSubmissionAt,
		"is_active":          p.IsActive,
		"cf_rank":            p.Codeforces.Rank,
		"cf_max_rank":        p.Codeforces.MaxRank,
		"cf_contribution":    p.Codeforces.Contribution,
		"cf_organization":    p.Codeforces.Organization,
		"cf_country":         p.Codeforces.Country,
		"cf_city":            p.Codeforces.City,
		"cf_last_online_at":  p.Codeforces.LastOnlineAt,
		"cf_registered_at":   p.Codeforces.RegisteredAt,
	}
	if p.Avatar != "" {
		fields["avatar"] = p.Avatar
	}
	return r.Update(ctx, id, fields)
}

func (r *studentRepository) TryMarkSyncing(ctx context.Context, id uint64, staleBefore time.Time) (bool, error) {
	// 条件更新即 CAS：并发的两个请求只有一个能改到这一行
	res := r.db.WithContext(ctx).Model(&model.Student{}).
		Where("id = ? AND (sync_status <> ? OR updated_at < ?)", id, model.SyncSyncing, staleBefore).
		Updates(map[string]interface{}{
			"sync_status": model.SyncSyncing,
			"sync_error":  nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *studentRepository) MarkSyncSuccess(ctx context.Context, id uint64, at time.Time) error {
	return r.Update(ctx, id, map[string]interface{}{
		"sync_status":  model.SyncSuccess,
		"sync_error":   nil,
		"last_sync_at": at,
	})
}

func (r *studentRepository) MarkSyncError(ctx context.Context, id uint64, msg string) error {
	return r.Update(ctx, id, map[string]interface{}{
		"sync_status": model.SyncError,
		"sync_error":  msg,
	})
}

func (r *studentRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&model.Student{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		for _, m := range []interface{}{&model.ContestRecord{}, &model.SolvedProblem{}, &model.DailyActivity{}} {
			if err := tx.Where("student_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *studentRepository) ListReminderCandidates(ctx context.Context, inactiveBefore, remindedBefore time.Time) ([]*model.Student, error) {
	var students []*model.Student
	err := r.db.WithContext(ctx).
		Where("email_notifications = ?", true).
		Where("sync_status = ?", model.SyncSuccess).
		Where("last_submission_at IS NULL OR last_submission_at < ?", inactiveBefore).
		Where("last_email_sent_at IS NULL OR last_email_sent_at < ?", remindedBefore).
		Order("id ASC").
		Find(&students).Error
	if err != nil {
		return nil, err
	}
	return students, nil
}

func (r *studentRepository) MarkReminderSent(ctx context.Context, id uint64, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Student{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_email_sent_at": at,
			"reminder_count":     gorm.Expr("reminder_count + ?", 1),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
