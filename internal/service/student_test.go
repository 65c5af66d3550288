package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ProgressSync/internal/model"
	"ProgressSync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEnqueuer struct {
	ids []uint64
	err error
}

func (s *stubEnqueuer) EnqueueSyncOne(id uint64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.ids = append(s.ids, id)
	return "job-1", nil
}

func (f *fixture) studentService(enq syncEnqueuer) *StudentService {
	svc := NewStudentService(f.students, f.records, enq, f.logger)
	svc.now = f.clock
	return svc
}

func validInput(handle string) RegisterInput {
	return RegisterInput{
		Name:             "Student " + handle,
		Email:            handle + "@example.com",
		Phone:            "+1 555 0100",
		CodeforcesHandle: handle,
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	svc := f.studentService(nil)
	ctx := context.Background()

	cases := map[string]func(*RegisterInput){
		"missing name":   func(in *RegisterInput) { in.Name = "  " },
		"missing phone":  func(in *RegisterInput) { in.Phone = "" },
		"bad email":      func(in *RegisterInput) { in.Email = "not-an-email" },
		"missing handle": func(in *RegisterInput) { in.CodeforcesHandle = "" },
		"bad handle":     func(in *RegisterInput) { in.CodeforcesHandle = "has space" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput("valid_user")
			mutate(&in)
			_, err := svc.Register(ctx, in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestRegisterEnqueuesInitialSync(t *testing.T) {
	f := newFixture(t)
	enq := &stubEnqueuer{}
	svc := f.studentService(enq)

	in := validInput("newbie")
	in.Email = "  NewBie@Example.COM "
	reg, err := svc.Register(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "job-1", reg.SyncJobID)
	assert.Equal(t, []uint64{reg.ID}, enq.ids)
	assert.Equal(t, "newbie@example.com", reg.Email)
	assert.True(t, reg.IsActive)
	assert.True(t, reg.EmailNotifications)
	assert.Equal(t, DefaultAvatar, reg.Avatar)
	assert.Equal(t, model.SyncPending, reg.SyncStatus)
	assert.True(t, reg.JoinDate.Equal(f.now))
}

func TestRegisterSurvivesEnqueueFailure(t *testing.T) {
	f := newFixture(t)
	svc := f.studentService(&stubEnqueuer{err: errors.New("queue full")})

	reg, err := svc.Register(context.Background(), validInput("patient"))
	require.NoError(t, err)
	assert.Empty(t, reg.SyncJobID)
	assert.NotZero(t, reg.ID)
}

func TestRegisterConflicts(t *testing.T) {
	f := newFixture(t)
	svc := f.studentService(nil)
	ctx := context.Background()
	_, err := svc.Register(ctx, validInput("alice"))
	require.NoError(t, err)

	dupHandle := validInput("ALICE")
	dupHandle.Email = "other@example.com"
	_, err = svc.Register(ctx, dupHandle)
	assert.ErrorIs(t, err, ErrConflict)

	dupEmail := validInput("alice2")
	dupEmail.Email = "Alice@Example.com"
	_, err = svc.Register(ctx, dupEmail)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestListStudents(t *testing.T) {
	f := newFixture(t)
	svc := f.studentService(nil)
	ctx := context.Background()
	testutil.Student(t, f.db, "one", true)
	testutil.Student(t, f.db, "two", true)
	testutil.Student(t, f.db, "three", false)

	page, err := svc.List(ctx, StudentQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Len(t, page.Students, 2)

	page, err = svc.List(ctx, StudentQuery{Status: "inactive"})
	require.NoError(t, err)
	require.Len(t, page.Students, 1)
	assert.Equal(t, "three", page.Students[0].CodeforcesHandle)

	page, err = svc.List(ctx, StudentQuery{Search: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, page.Students)
	assert.Empty(t, page.Students)
	assert.Equal(t, 0, page.TotalPages)

	_, err = svc.List(ctx, StudentQuery{Status: "sleeping"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateStudent(t *testing.T) {
	f := newFixture(t)
	svc := f.studentService(nil)
	ctx := context.Background()
	st := testutil.Student(t, f.db, "editme", true)
	testutil.Student(t, f.db, "taken", true)

	name := "  Edited Name "
	off := false
	got, err := svc.Update(ctx, st.ID, UpdateInput{Name: &name, EmailNotifications: &off})
	require.NoError(t, err)
	assert.Equal(t, "Edited Name", got.Name)
	assert.False(t, got.EmailNotifications)

	same := "editme"
	_, err = svc.Update(ctx, st.ID, UpdateInput{CodeforcesHandle: &same})
	assert.NoError(t, err)

	other := "someone_else"
	_, err = svc.Update(ctx, st.ID, UpdateInput{CodeforcesHandle: &other})
	assert.ErrorIs(t, err, ErrValidation)

	email := "TAKEN@example.com"
	_, err = svc.Update(ctx, st.ID, UpdateInput{Email: &email})
	assert.ErrorIs(t, err, ErrConflict)

	empty := ""
	_, err = svc.Update(ctx, st.ID, UpdateInput{Phone: &empty})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Update(ctx, 9999, UpdateInput{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteStudent(t *testing.T) {
	f := newFixture(t)
	svc := f.studentService(nil)
	ctx := context.Background()
	st := testutil.Student(t, f.db, "leaver", true)

	require.NoError(t, svc.Delete(ctx, st.ID))
	_, err := svc.Get(ctx, st.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, st.ID), ErrNotFound)
}

func seedProblem(t *testing.T, f *fixture, st *model.Student, subID int64, index string, rating *int, at time.Time) {
	t.Helper()
	require.NoError(t, f.records.UpsertProblem(context.Background(), &model.SolvedProblem{
		StudentID:     st.ID,
		Handle:        st.CodeforcesHandle,
		ContestID:     1000,
		ProblemIndex:  index,
		ProblemName:   "Problem " + index,
		ProblemRating: rating,
		Verdict:       model.VerdictOK,
		SubmittedAt:   at,
		SubmissionID:  subID,
	}))
}

func TestStudentDetail(t *testing.T) {
	f := newFixture(t)
	svc := f.studentService(nil)
	ctx := context.Background()
	st := testutil.Student(t, f.db, "detail", true)
	f.judge.SetUser(
		&model.CFUser{Handle: "detail", Rating: 1200},
		[]model.CFRatingChange{testutil.RatingChange(1, 1100, 1200, f.now.AddDate(0, 0, -3))},
		[]model.CFSubmission{testutil.Submission(9, 1, "A", model.VerdictOK, f.now.AddDate(0, 0, -3), 900)},
	)
	_, err := f.syncService().SyncOne(ctx, st.ID)
	require.NoError(t, err)

	detail, err := svc.Detail(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 1200, detail.Student.CurrentRating)
	assert.Len(t, detail.Contests, 1)
	assert.Len(t, detail.Problems, 1)
	assert.Len(t, detail.SubmissionActivity, 1)

	_, err = svc.Detail(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProblemStats(t *testing.T) {
	f := newFixture(t)
	svc := f.studentService(nil)
	ctx := context.Background()
	st := testutil.Student(t, f.db, "solver", true)

	r800, r1500, r3000 := 800, 1500, 3000
	seedProblem(t, f, st, 1, "A", &r800, f.now.AddDate(0, 0, -1))
	seedProblem(t, f, st, 2, "B", &r1500, f.now.AddDate(0, 0, -5))
	seedProblem(t, f, st, 3, "C", nil, f.now.AddDate(0, 0, -10))
	seedProblem(t, f, st, 4, "D", &r3000, f.now.AddDate(0, 0, -100))

	stats, err := svc.ProblemStats(ctx, st.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, 30, stats.Days)
	assert.Equal(t, 3, stats.TotalSolved)
	assert.Equal(t, 1150.0, stats.AverageRating)
	assert.Equal(t, 0.1, stats.AveragePerDay)
	require.NotNil(t, stats.HardestProblem)
	assert.Equal(t, "B", stats.HardestProblem.ProblemIndex)
	assert.Equal(t, []RatingBucket{{Rating: 800, Count: 1}, {Rating: 1500, Count: 1}}, stats.RatingBuckets)

	stats, err = svc.ProblemStats(ctx, st.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 365, stats.Days)
	assert.Equal(t, 4, stats.TotalSolved)
	assert.Equal(t, "D", stats.HardestProblem.ProblemIndex)

	_, err = svc.ProblemStats(ctx, st.ID, -1)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.ProblemStats(ctx, 9999, 30)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestContestHistory(t *testing.T) {
	f := newFixture(t)
	svc := f.studentService(nil)
	ctx := context.Background()
	st := testutil.Student(t, f.db, "contender", true)
	for i, daysAgo := range []int{5, 40, 200} {
		require.NoError(t, f.records.UpsertContest(ctx, &model.ContestRecord{
			StudentID:       st.ID,
			Handle:          st.CodeforcesHandle,
			ContestID:       int64(i + 1),
			ContestName:     "Round",
			OldRating:       1000,
			NewRating:       1100,
			RatingUpdatedAt: f.now.AddDate(0, 0, -daysAgo),
		}))
	}

	hist, err := svc.ContestHistory(ctx, st.ID, 30)
	require.NoError(t, err)
	require.Len(t, hist.Contests, 1)
	assert.Equal(t, int64(1), hist.Contests[0].ContestID)

	hist, err = svc.ContestHistory(ctx, st.ID, 90)
	require.NoError(t, err)
	assert.Len(t, hist.Contests, 2)

	hist, err = svc.ContestHistory(ctx, st.ID, 0)
	require.NoError(t, err)
	assert.Len(t, hist.Contests, 3)
}
