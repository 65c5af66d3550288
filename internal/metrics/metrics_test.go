package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"ProgressSync/internal/interfaces"
	"ProgressSync/internal/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveSync(OutcomeSuccess, time.Second)
		r.ObserveBatch(1, 1, time.Now())
		r.AddUpserted("contest", 3)
		r.AddSkipped("problem", "duplicate", 1)
		r.ObserveJudge("user.info", "ok", time.Millisecond)
		r.ObserveHTTP("/api/health", "GET", 200, time.Millisecond)
		r.JobsInFlight(1)
		r.ObserveReminder(OutcomeSuccess)
	})
	assert.Nil(t, r.Registry())
}

func TestRecorderCounts(t *testing.T) {
	r := New(WithNamespace("test"))

	r.ObserveSync(OutcomeSuccess, 10*time.Millisecond)
	r.ObserveSync(OutcomeSuccess, 20*time.Millisecond)
	r.ObserveSync(OutcomeError, time.Millisecond)
	r.ObserveBatch(2, 1, time.Unix(1700000000, 0))
	r.AddUpserted("problem", 4)
	r.AddUpserted("problem", 0)
	r.AddSkipped("problem", "duplicate", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.syncTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.syncTotal.WithLabelValues(OutcomeError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.batchTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(r.lastBatchUnix))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.recordsUpserted.WithLabelValues("problem")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.recordsSkipped.WithLabelValues("problem", "duplicate")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.ObserveHTTP("/api/students", "GET", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `progress_sync_http_requests_total{method="GET",route="/api/students",status_code="200"} 1`)
}

type stubJudge struct {
	profileErr error
}

func (s stubJudge) Name() string { return "stub" }
func (s stubJudge) FetchProfile(context.Context, string) (*model.CFUser, error) {
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	return &model.CFUser{Handle: "x"}, nil
}
func (s stubJudge) FetchRatingHistory(context.Context, string) ([]model.CFRatingChange, error) {
	return []model.CFRatingChange{}, nil
}
func (s stubJudge) FetchSubmissions(context.Context, string, int, int) ([]model.CFSubmission, error) {
	return []model.CFSubmission{{ID: 1}}, nil
}

func TestWrapJudge(t *testing.T) {
	r := New()
	assert.Equal(t, stubJudge{}, WrapJudge(stubJudge{}, nil))

	ctx := context.Background()
	j := WrapJudge(stubJudge{}, r)
	_, _ = j.FetchProfile(ctx, "x")
	_, _ = j.FetchRatingHistory(ctx, "x")
	_, _ = j.FetchSubmissions(ctx, "x", 1, 10)

	missing := WrapJudge(stubJudge{profileErr: fmt.Errorf("%w: y", interfaces.ErrHandleNotFound)}, r)
	_, err := missing.FetchProfile(ctx, "y")
	assert.ErrorIs(t, err, interfaces.ErrHandleNotFound)

	assert.Equal(t, "stub", j.Name())
	assert.Equal(t, 1.0, testutil.ToFloat64(r.judgeRequests.WithLabelValues("user.info", judgeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.judgeRequests.WithLabelValues("user.info", judgeNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.judgeRequests.WithLabelValues("user.rating", judgeEmpty)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.judgeRequests.WithLabelValues("user.status", judgeOK)))
}
