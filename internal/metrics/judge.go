package metrics

import (
	"context"
	"errors"
	"time"

	"ProgressSync/internal/interfaces"
	"ProgressSync/internal/model"
)

// 评测平台请求结果标签
const (
	judgeOK       = "ok"
	judgeEmpty    = "empty"
	judgeNotFound = "not_found"
	judgeError    = "error"
)

type instrumentedJudge struct {
	next interfaces.JudgeClient
	rec  *Recorder
}

// WrapJudge 给评测平台客户端加上请求计数与耗时；rec 为 nil 时原样返回
func WrapJudge(next interfaces.JudgeClient, rec *Recorder) interfaces.JudgeClient {
	if rec == nil {
		return next
	}
	return &instrumentedJudge{next: next, rec: rec}
}

func (j *instrumentedJudge) Name() string { return j.next.Name() }

func (j *instrumentedJudge) FetchProfile(ctx context.Context, handle string) (*model.CFUser, error) {
	start := time.Now()
	user, err := j.next.FetchProfile(ctx, handle)
	outcome := judgeOK
	switch {
	case errors.Is(err, interfaces.ErrHandleNotFound):
		outcome = judgeNotFound
	case err != nil:
		outcome = judgeError
	}
	j.rec.ObserveJudge("user.info", outcome, time.Since(start))
	return user, err
}

func (j *instrumentedJudge) FetchRatingHistory(ctx context.Context, handle string) ([]model.CFRatingChange, error) {
	start := time.Now()
	changes, err := j.next.FetchRatingHistory(ctx, handle)
	j.rec.ObserveJudge("user.rating", listOutcome(len(changes), err), time.Since(start))
	return changes, err
}

func (j *instrumentedJudge) FetchSubmissions(ctx context.Context, handle string, from, count int) ([]model.CFSubmission, error) {
	start := time.Now()
	subs, err := j.next.FetchSubmissions(ctx, handle, from, count)
	j.rec.ObserveJudge("user.status", listOutcome(len(subs), err), time.Since(start))
	return subs, err
}

func listOutcome(n int, err error) string {
	switch {
	case err != nil:
		return judgeError
	case n == 0:
		return judgeEmpty
	default:
		return judgeOK
	}
}
