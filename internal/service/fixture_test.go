package service

import (
	"context"
	"testing"
	"time"

	"ProgressSync/internal/config"
	"ProgressSync/internal/model"
	"ProgressSync/internal/repository"
	"ProgressSync/internal/testutil"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	students repository.StudentRepository
	records  repository.RecordRepository
	judge    *testutil.FakeJudge
	logger   *logrus.Logger
	hook     *logtest.Hook
	cfg      *config.Config
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	logger, hook := testutil.Logger()
	cfg := config.Default()
	cfg.Sync.StudentPause = 0
	return &fixture{
		db:       db,
		students: repository.NewStudentRepository(db),
		records:  repository.NewRecordRepository(db),
		judge:    testutil.NewFakeJudge(),
		logger:   logger,
		hook:     hook,
		cfg:      cfg,
		now:      time.Now().UTC().Truncate(time.Second),
	}
}

func (f *fixture) clock() time.Time { return f.now }

// syncService 固定时钟，学生之间不停顿
func (f *fixture) syncService() *SyncService {
	svc := NewSyncService(f.judge, f.students, f.records, f.cfg, nil, f.logger)
	svc.now = f.clock
	svc.reconciler.now = f.clock
	svc.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return svc
}

func (f *fixture) reload(t *testing.T, id uint64) *model.Student {
	t.Helper()
	s, err := f.students.GetByID(context.Background(), id)
	require.NoError(t, err)
	return s
}

// user 预置一个只有资料的评测平台用户
func (f *fixture) user(handle string, rating int) {
	f.judge.SetUser(&model.CFUser{Handle: handle, Rating: rating, MaxRating: rating}, nil, nil)
}
