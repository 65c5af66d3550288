package service

import (
	"context"
	"testing"
	"time"

	"ProgressSync/internal/model"
	"ProgressSync/internal/repository"
	"ProgressSync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) analyticsService() *AnalyticsService {
	svc := NewAnalyticsService(repository.NewAnalyticsRepository(f.db), f.logger)
	svc.now = f.clock
	return svc
}

func (f *fixture) setRating(t *testing.T, st *model.Student, rating int, last *time.Time) {
	t.Helper()
	require.NoError(t, f.db.Model(&model.Student{}).Where("id = ?", st.ID).
		Updates(map[string]interface{}{"current_rating": rating, "last_submission_at": last}).Error)
}

func TestBucketIndex(t *testing.T) {
	assert.Equal(t, 0, bucketIndex(0))
	assert.Equal(t, 0, bucketIndex(1199))
	assert.Equal(t, 1, bucketIndex(1200))
	assert.Equal(t, 3, bucketIndex(1899))
	assert.Equal(t, 9, bucketIndex(3999))
	assert.Equal(t, -1, bucketIndex(4000))
	assert.Equal(t, -1, bucketIndex(-5))
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	f.now = time.Date(2024, 5, 20, 15, 30, 0, 0, time.UTC)
	ctx := context.Background()

	a := testutil.Student(t, f.db, "dash_a", true)
	b := testutil.Student(t, f.db, "dash_b", false)
	f.setRating(t, a, 1500, nil)
	f.setRating(t, b, 1000, nil)

	for _, day := range []struct {
		date     string
		count    int
		accepted int
	}{
		{"2024-05-20", 4, 2},
		{"2024-05-18", 3, 1},
		{"2024-05-14", 5, 5},
		{"2024-05-13", 9, 9},
	} {
		require.NoError(t, f.records.UpsertActivity(ctx, &model.DailyActivity{
			StudentID: a.ID, Handle: a.CodeforcesHandle, Date: day.date, Count: day.count, AcceptedCount: day.accepted,
		}))
	}
	require.NoError(t, f.records.UpsertActivity(ctx, &model.DailyActivity{
		StudentID: b.ID, Handle: b.CodeforcesHandle, Date: "2024-05-20", Count: 1,
	}))
	require.NoError(t, f.records.UpsertContest(ctx, &model.ContestRecord{
		StudentID: a.ID, Handle: a.CodeforcesHandle, ContestID: 1, ContestName: "Round",
		RatingUpdatedAt: time.Date(2024, 5, 18, 17, 0, 0, 0, time.UTC),
	}))

	dash, err := f.analyticsService().Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, dash.Stats.TotalStudents)
	assert.Equal(t, 1, dash.Stats.ActiveStudents)
	assert.Equal(t, 1, dash.Stats.InactiveStudents)
	assert.Equal(t, 1250, dash.Stats.AverageRating)
	assert.Equal(t, int64(13), dash.Stats.RecentActivity)
	assert.Equal(t, int64(1), dash.Stats.TotalContests)

	require.Len(t, dash.WeeklyActivity, 7)
	assert.Equal(t, "2024-05-14", dash.WeeklyActivity[0].Day)
	assert.Equal(t, "May 14", dash.WeeklyActivity[0].Date)
	assert.Equal(t, int64(5), dash.WeeklyActivity[0].Submissions)
	assert.Equal(t, int64(0), dash.WeeklyActivity[1].Submissions)
	assert.Equal(t, 1, dash.WeeklyActivity[4].Contests)
	last := dash.WeeklyActivity[6]
	assert.Equal(t, "2024-05-20", last.Day)
	assert.Equal(t, int64(5), last.Submissions)
	assert.Equal(t, int64(2), last.Problems)
}

func TestDashboardEmpty(t *testing.T) {
	f := newFixture(t)
	dash, err := f.analyticsService().Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, dash.Stats.AverageRating)
	assert.Len(t, dash.WeeklyActivity, 7)
}

func TestRatingDistribution(t *testing.T) {
	f := newFixture(t)
	for handle, rating := range map[string]int{"newbie": 1100, "pupil": 1250, "pupil2": 1399, "legend": 4100} {
		st := testutil.Student(t, f.db, handle, true)
		f.setRating(t, st, rating, nil)
	}

	ranges, err := f.analyticsService().RatingDistribution(context.Background())
	require.NoError(t, err)
	require.Len(t, ranges, 11)
	assert.Equal(t, "0-1199", ranges[0].Label)
	assert.Equal(t, 1, ranges[0].Count)
	assert.Equal(t, "1200-1399", ranges[1].Label)
	assert.Equal(t, 2, ranges[1].Count)
	assert.ElementsMatch(t, []string{"pupil", "pupil2"}, ranges[1].Students)
	assert.Equal(t, 0, ranges[2].Count)
	assert.NotNil(t, ranges[2].Students)
	other := ranges[10]
	assert.Equal(t, "Other", other.Label)
	assert.Equal(t, []string{"legend"}, other.Students)
}

func TestRatingDistributionOmitsEmptyOther(t *testing.T) {
	f := newFixture(t)
	testutil.Student(t, f.db, "zero", true)
	ranges, err := f.analyticsService().RatingDistribution(context.Background())
	require.NoError(t, err)
	assert.Len(t, ranges, 10)
	assert.Equal(t, 1, ranges[0].Count)
}

func TestPerformanceTrends(t *testing.T) {
	f := newFixture(t)
	jan1 := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	jan2 := time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	s1 := testutil.Student(t, f.db, "trend_a", true)
	s2 := testutil.Student(t, f.db, "trend_b", false)
	s3 := testutil.Student(t, f.db, "trend_c", true)
	s4 := testutil.Student(t, f.db, "trend_d", false)
	f.setRating(t, s1, 1000, &jan1)
	f.setRating(t, s2, 1501, &jan2)
	f.setRating(t, s3, 2000, &mar)
	f.setRating(t, s4, 3000, nil)

	svc := f.analyticsService()
	trends, err := svc.PerformanceTrends(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, trends, 2)
	assert.Equal(t, "2024-01", trends[0].Label)
	assert.Equal(t, 1250.5, trends[0].AverageRating)
	assert.Equal(t, 1, trends[0].ActiveStudents)
	assert.Equal(t, 2, trends[0].TotalStudents)
	assert.Equal(t, "2024-03", trends[1].Label)

	trends, err = svc.PerformanceTrends(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, trends, 1)
	assert.Equal(t, 3, trends[0].Month)

	_, err = svc.PerformanceTrends(context.Background(), -3)
	assert.ErrorIs(t, err, ErrValidation)
}
