package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ProgressSync/internal/interfaces"
	"ProgressSync/internal/model"
	"ProgressSync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncOneAliceScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	students := NewStudentService(f.students, f.records, nil, f.logger)
	reg, err := students.Register(ctx, RegisterInput{
		Name:             "Alice",
		Email:            "Alice@Example.com",
		Phone:            "555-0100",
		CodeforcesHandle: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, model.SyncPending, reg.SyncStatus)

	submittedAt := time.Unix(1000, 0).UTC()
	f.judge.SetUser(
		&model.CFUser{Handle: "alice", Rating: 1500, MaxRating: 1600},
		nil,
		[]model.CFSubmission{testutil.Submission(1, 100, "A", model.VerdictOK, submittedAt, 800)},
	)

	res, err := f.syncService().SyncOne(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncSuccess, res.Status)

	got := f.reload(t, reg.ID)
	assert.Equal(t, 1500, got.CurrentRating)
	assert.Equal(t, 1600, got.MaxRating)
	assert.False(t, got.IsActive, "a submission at t=1000 is far outside the active window")
	require.NotNil(t, got.LastSubmissionAt)
	assert.Equal(t, int64(1000), got.LastSubmissionAt.Unix())
	assert.Equal(t, model.SyncSuccess, got.SyncStatus)
	assert.Nil(t, got.SyncError)
	require.NotNil(t, got.LastSyncAt)

	problems, err := f.records.ListProblems(ctx, reg.ID, nil)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, int64(100), problems[0].ContestID)
	assert.Equal(t, "A", problems[0].ProblemIndex)

	days, err := f.records.ListActivity(ctx, reg.ID, "")
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, submittedAt.Format(model.DateLayout), days[0].Date)
	assert.Equal(t, 1, days[0].Count)
	assert.Equal(t, 1, days[0].AcceptedCount)
}

func TestSyncOneIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := testutil.Student(t, f.db, "bob", true)
	at := f.now.AddDate(0, 0, -2).Truncate(24 * time.Hour).Add(12 * time.Hour)
	f.judge.SetUser(
		&model.CFUser{Handle: "bob", Rating: 1700, MaxRating: 1800},
		[]model.CFRatingChange{testutil.RatingChange(500, 1600, 1700, at)},
		[]model.CFSubmission{
			testutil.Submission(1, 500, "A", model.VerdictOK, at, 1000, "math"),
			testutil.Submission(2, 500, "B", model.VerdictWrongAnswer, at, 1500),
			testutil.Submission(3, 500, "B", model.VerdictOK, at.Add(time.Minute), 1500),
		},
	)

	svc := f.syncService()
	_, err := svc.SyncOne(ctx, st.ID)
	require.NoError(t, err)
	first, err := f.records.CountByStudent(ctx, st.ID)
	require.NoError(t, err)

	_, err = svc.SyncOne(ctx, st.ID)
	require.NoError(t, err)
	second, err := f.records.CountByStudent(ctx, st.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), second.Contests)
	assert.Equal(t, int64(2), second.Problems)
	assert.Equal(t, int64(1), second.Days)

	days, err := f.records.ListActivity(ctx, st.ID, "")
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, 3, days[0].Count, "counters are replaced, not accumulated")
	assert.Equal(t, 2, days[0].AcceptedCount)

	got := f.reload(t, st.ID)
	assert.True(t, got.IsActive)
}

func TestSyncOneNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.syncService().SyncOne(context.Background(), 424242)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSyncOneUnknownHandleMarksError(t *testing.T) {
	f := newFixture(t)
	st := testutil.Student(t, f.db, "ghost", true)

	_, err := f.syncService().SyncOne(context.Background(), st.ID)
	require.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, interfaces.ErrHandleNotFound)

	got := f.reload(t, st.ID)
	assert.Equal(t, model.SyncError, got.SyncStatus)
	require.NotNil(t, got.SyncError)
	assert.Contains(t, *got.SyncError, "ghost")
	assert.Nil(t, got.LastSyncAt)
}

func TestSyncOneUpstreamFailureKeepsLastKnownGood(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := testutil.Student(t, f.db, "henry", true)
	f.user("henry", 1900)

	svc := f.syncService()
	_, err := svc.SyncOne(ctx, st.ID)
	require.NoError(t, err)

	f.judge.FailProfile("henry", interfaces.ErrUpstreamUnavailable)
	_, err = svc.SyncOne(ctx, st.ID)
	require.ErrorIs(t, err, ErrUpstreamUnavailable)

	got := f.reload(t, st.ID)
	assert.Equal(t, model.SyncError, got.SyncStatus)
	assert.Equal(t, 1900, got.CurrentRating)
	require.NotNil(t, got.LastSyncAt, "last successful sync time is kept")
}

func TestSyncOneRefusesWhileSyncing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := testutil.Student(t, f.db, "ivan", true)
	f.user("ivan", 1200)
	require.NoError(t, f.db.Model(&model.Student{}).Where("id = ?", st.ID).
		Update("sync_status", model.SyncSyncing).Error)

	_, err := f.syncService().SyncOne(ctx, st.ID)
	require.ErrorIs(t, err, ErrSyncInProgress)
	assert.Equal(t, 0, f.judge.Calls("ivan"))
	assert.Equal(t, model.SyncSyncing, f.reload(t, st.ID).SyncStatus)
}

func TestSyncOneTakesOverStaleSyncing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := testutil.Student(t, f.db, "judy", true)
	f.user("judy", 1200)
	require.NoError(t, f.db.Model(&model.Student{}).Where("id = ?", st.ID).
		UpdateColumns(map[string]interface{}{
			"sync_status": model.SyncSyncing,
			"updated_at":  f.now.Add(-2 * f.cfg.Sync.StaleAfter),
		}).Error)

	_, err := f.syncService().SyncOne(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncSuccess, f.reload(t, st.ID).SyncStatus)
}

func TestSyncAllIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutil.Student(t, f.db, "a_user", true)
	b := testutil.Student(t, f.db, "b_user", true)
	c := testutil.Student(t, f.db, "c_user", true)
	testutil.Student(t, f.db, "inactive", false)
	f.user("a_user", 1000)
	f.user("c_user", 1100)
	f.judge.FailProfile("b_user", errors.New("boom"))

	var hooked *BatchResult
	svc := f.syncService()
	svc.OnBatchDone(func(_ context.Context, res *BatchResult) { hooked = res })

	res, err := svc.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, b.ID, res.Failures[0].StudentID)
	assert.Contains(t, res.Failures[0].Error, "boom")
	assert.Same(t, res, hooked)

	assert.Equal(t, model.SyncSuccess, f.reload(t, a.ID).SyncStatus)
	assert.Equal(t, model.SyncError, f.reload(t, b.ID).SyncStatus)
	assert.Equal(t, model.SyncSuccess, f.reload(t, c.ID).SyncStatus)
	assert.Equal(t, 1100, f.reload(t, c.ID).CurrentRating)
	assert.Equal(t, 0, f.judge.Calls("inactive"))
}

func TestSyncAllStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	testutil.Student(t, f.db, "k_one", true)
	second := testutil.Student(t, f.db, "k_two", true)
	f.user("k_one", 1000)
	f.user("k_two", 1000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := f.syncService()
	svc.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	called := false
	svc.OnBatchDone(func(context.Context, *BatchResult) { called = true })

	res, err := svc.SyncAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.True(t, res.Canceled)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 0, f.judge.Calls("k_two"))
	assert.Equal(t, model.SyncPending, f.reload(t, second.ID).SyncStatus)
	assert.False(t, called)
}

func TestSyncOneNeverTakesOverWhenStaleAfterDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfg.Sync.StaleAfter = 0
	st := testutil.Student(t, f.db, "kate", true)
	f.user("kate", 1200)
	require.NoError(t, f.db.Model(&model.Student{}).Where("id = ?", st.ID).
		UpdateColumns(map[string]interface{}{
			"sync_status": model.SyncSyncing,
			"updated_at":  f.now.AddDate(0, -1, 0),
		}).Error)

	_, err := f.syncService().SyncOne(ctx, st.ID)
	require.ErrorIs(t, err, ErrSyncInProgress)
	assert.Equal(t, 0, f.judge.Calls("kate"))
	assert.Equal(t, model.SyncSyncing, f.reload(t, st.ID).SyncStatus)
}

func TestSyncAllPausesBetweenStudents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfg.Sync.StudentPause = time.Second
	for _, h := range []string{"p_one", "p_two", "p_three"} {
		testutil.Student(t, f.db, h, true)
		f.user(h, 1000)
	}

	svc := f.syncService()
	var pauses []time.Duration
	var fetchedBeforePause []int
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		fetchedBeforePause = append(fetchedBeforePause,
			f.judge.Calls("p_one")+f.judge.Calls("p_two")+f.judge.Calls("p_three"))
		return ctx.Err()
	}

	res, err := svc.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, pauses)
	assert.Equal(t, []int{1, 2}, fetchedBeforePause)
}
