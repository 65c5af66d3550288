// Package testutil 测试共用的内存数据库、日志和假评测平台
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ProgressSync/internal/interfaces"
	"ProgressSync/internal/model"
	"ProgressSync/internal/repository"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// DB 每个测试一个独立的内存 sqlite 库，已完成迁移
func DB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:progress_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), repository.GormConfig("silent"))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.Migrate(db))
	return db
}

// Logger 丢弃输出的日志实例，hook 可用于断言日志
func Logger() (*logrus.Logger, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

// Student 插入一个学生（handle 同时用作邮箱前缀）
func Student(t *testing.T, db *gorm.DB, handle string, active bool) *model.Student {
	t.Helper()
	s := &model.Student{
		Name:               handle,
		Email:              handle + "@example.com",
		CodeforcesHandle:   handle,
		IsActive:           active,
		EmailNotifications: true,
		SyncStatus:         model.SyncPending,
		JoinDate:           time.Now().UTC(),
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

// FakeJudge 内存版评测平台，按 handle 返回预置数据
type FakeJudge struct {
	mu          sync.Mutex
	profiles    map[string]*model.CFUser
	ratings     map[string][]model.CFRatingChange
	submissions map[string][]model.CFSubmission
	errs        map[string]error
	calls       map[string]int

	// OnFetch 每次拉取资料前调用，可用于阻塞或计时
	OnFetch func(handle string)
}

var _ interfaces.JudgeClient = (*FakeJudge)(nil)

func NewFakeJudge() *FakeJudge {
	return &FakeJudge{
		profiles:    make(map[string]*model.CFUser),
		ratings:     make(map[string][]model.CFRatingChange),
		submissions: make(map[string][]model.CFSubmission),
		errs:        make(map[string]error),
		calls:       make(map[string]int),
	}
}

// SetUser 预置用户的全部数据
func (f *FakeJudge) SetUser(user *model.CFUser, ratings []model.CFRatingChange, subs []model.CFSubmission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[user.Handle] = user
	f.ratings[user.Handle] = ratings
	f.submissions[user.Handle] = subs
	delete(f.errs, user.Handle)
}

// FailProfile 拉取该 handle 的资料时返回 err
func (f *FakeJudge) FailProfile(handle string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[handle] = err
}

// Calls 该 handle 的资料被拉取的次数
func (f *FakeJudge) Calls(handle string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[handle]
}

func (f *FakeJudge) Name() string { return "fake" }

func (f *FakeJudge) FetchProfile(ctx context.Context, handle string) (*model.CFUser, error) {
	if f.OnFetch != nil {
		f.OnFetch(handle)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrUpstreamUnavailable, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[handle]++
	if err, ok := f.errs[handle]; ok {
		return nil, err
	}
	user, ok := f.profiles[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrHandleNotFound, handle)
	}
	cp := *user
	return &cp, nil
}

func (f *FakeJudge) FetchRatingHistory(_ context.Context, handle string) ([]model.CFRatingChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]model.CFRatingChange{}, f.ratings[handle]...)
	return out, nil
}

func (f *FakeJudge) FetchSubmissions(_ context.Context, handle string, _, _ int) ([]model.CFSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]model.CFSubmission{}, f.submissions[handle]...)
	return out, nil
}

// Submission 构造一条提交
func Submission(id, contestID int64, index, verdict string, at time.Time, rating int, tags ...string) model.CFSubmission {
	return model.CFSubmission{
		ID:                  id,
		ContestID:           contestID,
		CreationTimeSeconds: at.Unix(),
		Verdict:             verdict,
		ProgrammingLanguage: "GNU C++17",
		Problem: model.CFProblem{
			ContestID: contestID,
			Index:     index,
			Name:      fmt.Sprintf("Problem %d%s", contestID, index),
			Rating:    rating,
			Tags:      tags,
		},
	}
}

// RatingChange 构造一场比赛的积分变化
func RatingChange(contestID int64, oldRating, newRating int, at time.Time) model.CFRatingChange {
	return model.CFRatingChange{
		ContestID:               contestID,
		ContestName:             fmt.Sprintf("Codeforces Round %d", contestID),
		Rank:                    100,
		RatingUpdateTimeSeconds: at.Unix(),
		OldRating:               oldRating,
		NewRating:               newRating,
	}
}
