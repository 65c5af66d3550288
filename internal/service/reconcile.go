package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"ProgressSync/internal/model"
	"ProgressSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// Snapshot 一次同步从评测平台拉到的全部数据
type Snapshot struct {
	Profile     *model.CFUser
	Ratings     []model.CFRatingChange
	Submissions []model.CFSubmission
}

// ReconcileResult 对账结果统计（用于日志与指标）
type ReconcileResult struct {
	Profile           model.ProfileUpdate `json:"-"`
	ContestsUpserted  int                 `json:"contests_upserted"`
	ContestsFailed    int                 `json:"contests_failed"`
	ProblemsUpserted  int                 `json:"problems_upserted"`
	ProblemsDuplicate int                 `json:"problems_duplicate"`
	ProblemsFailed    int                 `json:"problems_failed"`
	DaysUpserted      int                 `json:"days_upserted"`
	DaysFailed        int                 `json:"days_failed"`
}

// Reconciler 把拉取到的数据对账写入学生、比赛、题目、每日统计四张表。
// 本身无状态；第一步（资料）失败即整体失败，后三步逐条容错。
type Reconciler struct {
	students repository.StudentRepository
	records  repository.RecordRepository
	logger   *logrus.Logger
	now      func() time.Time
}

// NewReconciler 创建对账引擎
func NewReconciler(students repository.StudentRepository, records repository.RecordRepository, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		students: students,
		records:  records,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile 按 资料 → 比赛 → 题目 → 每日统计 的顺序对账
func (r *Reconciler) Reconcile(ctx context.Context, student *model.Student, snap *Snapshot) (*ReconcileResult, error) {
	if snap == nil || snap.Profile == nil {
		return nil, errors.New("对账缺少用户资料")
	}
	log := r.logger.WithFields(logrus.Fields{
		"student_id": student.ID,
		"handle":     student.CodeforcesHandle,
	})
	result := &ReconcileResult{}

	// 1. 资料：一次写回，失败即终止
	profile := deriveProfile(snap.Profile, snap.Submissions, r.now())
	if err := r.students.UpdateProfile(ctx, student.ID, profile); err != nil {
		return nil, wrapRepoErr(err, "更新学生资料失败")
	}
	result.Profile = profile

	solved := firstAccepted(snap.Submissions)
	perContest := make(map[int64]int, len(solved))
	for _, sub := range solved {
		perContest[sub.Problem.ContestID]++
	}

	// 2. 比赛
	for _, rc := range snap.Ratings {
		handle := rc.Handle
		if handle == "" {
			handle = student.CodeforcesHandle
		}
		record := &model.ContestRecord{
			StudentID:       student.ID,
			Handle:          handle,
			ContestID:       rc.ContestID,
			ContestName:     rc.ContestName,
			Rank:            rc.Rank,
			OldRating:       rc.OldRating,
			NewRating:       rc.NewRating,
			RatingChange:    rc.NewRating - rc.OldRating,
			RatingUpdatedAt: rc.UpdatedAt(),
			ProblemsSolved:  perContest[rc.ContestID],
		}
		if err := r.records.UpsertContest(ctx, record); err != nil {
			result.ContestsFailed++
			log.WithError(err).WithField("contest_id", rc.ContestID).Warn("写入比赛记录失败，跳过")
			continue
		}
		result.ContestsUpserted++
	}

	// 3. 题目：只保留每题最早的一次 AC
	for _, sub := range solved {
		problem := solvedProblemFrom(student, sub)
		if err := r.records.UpsertProblem(ctx, problem); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				result.ProblemsDuplicate++
				log.WithField("submission_id", sub.ID).Debug("提交已被其他记录占用，忽略")
				continue
			}
			result.ProblemsFailed++
			log.WithError(err).WithFields(logrus.Fields{
				"contest_id":    sub.Problem.ContestID,
				"problem_index": sub.Problem.Index,
			}).Warn("写入题目记录失败，跳过")
			continue
		}
		result.ProblemsUpserted++
	}

	// 4. 每日统计：整体覆盖，不做累加
	for _, day := range aggregateActivity(snap.Submissions) {
		day.StudentID = student.ID
		day.Handle = student.CodeforcesHandle
		if err := r.records.UpsertActivity(ctx, day); err != nil {
			result.DaysFailed++
			log.WithError(err).WithField("date", day.Date).Warn("写入每日统计失败，跳过")
			continue
		}
		result.DaysUpserted++
	}

	log.WithFields(logrus.Fields{
		"contests": result.ContestsUpserted,
		"problems": result.ProblemsUpserted,
		"days":     result.DaysUpserted,
		"failed":   result.ContestsFailed + result.ProblemsFailed + result.DaysFailed,
	}).Debug("对账完成")
	return result, nil
}

// deriveProfile 计算资料字段：积分、最近提交时间、活跃标记与平台资料快照
func deriveProfile(user *model.CFUser, subs []model.CFSubmission, now time.Time) model.ProfileUpdate {
	maxRating := user.MaxRating
	if maxRating == 0 {
		maxRating = user.Rating
	}

	var last *time.Time
	for i := range subs {
		at := subs[i].CreatedAt()
		if last == nil || at.After(*last) {
			last = &at
		}
	}

	return model.ProfileUpdate{
		CurrentRating:    user.Rating,
		MaxRating:        maxRating,
		LastSubmissionAt: last,
		IsActive:         model.IsActiveAt(last, now),
		Avatar:           user.TitlePhoto,
		Codeforces: model.CodeforcesProfile{
			Rank:         user.Rank,
			MaxRank:      user.MaxRank,
			Contribution: user.Contribution,
			Organization: user.Organization,
			Country:      user.Country,
			City:         user.City,
			LastOnlineAt: model.UnixPtr(user.LastOnlineTimeSeconds),
			RegisteredAt: model.UnixPtr(user.RegistrationTimeSeconds),
		},
	}
}

type problemKey struct {
	contestID int64
	index     string
}

// firstAccepted 按 (contestId, index) 分组，每组保留 creationTime 最小的 AC 提交；结果按题目排序
func firstAccepted(subs []model.CFSubmission) []model.CFSubmission {
	earliest := make(map[problemKey]model.CFSubmission)
	for _, sub := range subs {
		if sub.Verdict != model.VerdictOK {
			continue
		}
		key := problemKey{contestID: sub.Problem.ContestID, index: sub.Problem.Index}
		if cur, ok := earliest[key]; !ok || sub.CreationTimeSeconds < cur.CreationTimeSeconds {
			earliest[key] = sub
		}
	}

	out := make([]model.CFSubmission, 0, len(earliest))
	for _, sub := range earliest {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Problem.ContestID != out[j].Problem.ContestID {
			return out[i].Problem.ContestID < out[j].Problem.ContestID
		}
		return out[i].Problem.Index < out[j].Problem.Index
	})
	return out
}

func solvedProblemFrom(student *model.Student, sub model.CFSubmission) *model.SolvedProblem {
	var rating *int
	if sub.Problem.Rating > 0 {
		v := sub.Problem.Rating
		rating = &v
	}
	return &model.SolvedProblem{
		StudentID:           student.ID,
		Handle:              student.CodeforcesHandle,
		ContestID:           sub.Problem.ContestID,
		ProblemIndex:        sub.Problem.Index,
		ProblemName:         sub.Problem.Name,
		ProblemRating:       rating,
		Tags:                model.EncodeTags(sub.Problem.Tags),
		Verdict:             sub.Verdict,
		SubmittedAt:         sub.CreatedAt(),
		SubmissionID:        sub.ID,
		Language:            sub.ProgrammingLanguage,
		TimeConsumedMillis:  sub.TimeConsumedMillis,
		MemoryConsumedBytes: sub.MemoryConsumedBytes,
	}
}

// aggregateActivity 所有提交按 UTC 日期分组计数，结果按日期正序
func aggregateActivity(subs []model.CFSubmission) []*model.DailyActivity {
	byDate := make(map[string]*model.DailyActivity)
	for i := range subs {
		date := subs[i].CreatedAt().Format(model.DateLayout)
		day, ok := byDate[date]
		if !ok {
			day = &model.DailyActivity{Date: date}
			byDate[date] = day
		}
		day.Count++
		switch subs[i].Verdict {
		case model.VerdictOK:
			day.AcceptedCount++
		case model.VerdictWrongAnswer:
			day.WrongAnswerCount++
		case model.VerdictTimeLimitExceeded:
			day.TimeoutCount++
		default:
			day.OtherCount++
		}
	}

	out := make([]*model.DailyActivity, 0, len(byDate))
	for _, day := range byDate {
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// String 便于日志输出
func (r *ReconcileResult) String() string {
	return fmt.Sprintf("contests=%d/%d problems=%d(+%d dup)/%d days=%d/%d",
		r.ContestsUpserted, r.ContestsFailed,
		r.ProblemsUpserted, r.ProblemsDuplicate, r.ProblemsFailed,
		r.DaysUpserted, r.DaysFailed)
}
