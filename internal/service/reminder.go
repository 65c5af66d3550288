package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"ProgressSync/internal/config"
	"ProgressSync/internal/interfaces"
	"ProgressSync/internal/metrics"
	"ProgressSync/internal/model"
	"ProgressSync/internal/repository"

	"github.com/sirupsen/logrus"
)

var reminderTemplate = template.Must(template.New("reminder").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>Hi {{.Name}},</h2>
  {{if .Never}}
  <p>We have not seen any Codeforces submissions from <b>{{.Handle}}</b> yet.</p>
  {{else}}
  <p>Your last Codeforces submission as <b>{{.Handle}}</b> was {{.DaysInactive}} days ago ({{.LastSubmission}}).</p>
  {{end}}
  <p>Your current rating is <b>{{.Rating}}</b>. A problem a day keeps the rating up, so why not solve one today?</p>
  <p><a href="https://codeforces.com/problemset">Open the problemset</a></p>
  <p style="font-size: 12px; color: #6b7280;">You can turn these reminders off in your student profile.</p>
</body>
</html>`))

type reminderView struct {
	Name           string
	Handle         string
	Rating         int
	Never          bool
	DaysInactive   int
	LastSubmission string
}

// ReminderResult 一轮提醒的结果
type ReminderResult struct {
	Candidates int            `json:"candidates"`
	Sent       int            `json:"sent"`
	Failed     int            `json:"failed"`
	Failures   []BatchFailure `json:"failures"`
}

// ReminderService 给长时间没有提交的学生发提醒邮件
type ReminderService struct {
	students    repository.StudentRepository
	mailer      interfaces.Mailer
	metrics     *metrics.Recorder
	logger      *logrus.Logger
	subject     string
	minInterval time.Duration
	now         func() time.Time
}

// NewReminderService 创建提醒服务
func NewReminderService(students repository.StudentRepository, mailer interfaces.Mailer, cfg *config.ReminderConfig,
	rec *metrics.Recorder, logger *logrus.Logger) *ReminderService {
	return &ReminderService{
		students:    students,
		mailer:      mailer,
		metrics:     rec,
		logger:      logger,
		subject:     cfg.Subject,
		minInterval: cfg.MinInterval,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SendReminders 向开启通知、超过活跃窗口未提交、且在 minInterval 内未提醒过的学生发邮件；
// 单封失败不影响其他学生
func (s *ReminderService) SendReminders(ctx context.Context) (*ReminderResult, error) {
	now := s.now()
	candidates, err := s.students.ListReminderCandidates(ctx, now.Add(-model.ActiveWindow), now.Add(-s.minInterval))
	if err != nil {
		return nil, fmt.Errorf("查询提醒对象失败: %w", err)
	}
	res := &ReminderResult{Candidates: len(candidates), Failures: []BatchFailure{}}

	for _, st := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		log := s.logger.WithFields(logrus.Fields{"student_id": st.ID, "handle": st.CodeforcesHandle})
		if err := s.remind(ctx, st, now); err != nil {
			res.Failed++
			res.Failures = append(res.Failures, BatchFailure{StudentID: st.ID, Handle: st.CodeforcesHandle, Error: err.Error()})
			s.metrics.ObserveReminder(metrics.OutcomeError)
			log.WithError(err).Warn("发送提醒邮件失败")
			continue
		}
		res.Sent++
		s.metrics.ObserveReminder(metrics.OutcomeSuccess)
		log.Info("已发送提醒邮件")
	}

	s.logger.WithFields(logrus.Fields{
		"candidates": res.Candidates,
		"sent":       res.Sent,
		"failed":     res.Failed,
	}).Info("不活跃提醒结束")
	return res, nil
}

func (s *ReminderService) remind(ctx context.Context, st *model.Student, now time.Time) error {
	body, err := renderReminder(st, now)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, []string{st.Email}, s.subject, body); err != nil {
		return err
	}
	if err := s.students.MarkReminderSent(ctx, st.ID, now); err != nil {
		return fmt.Errorf("记录提醒时间失败: %w", err)
	}
	return nil
}

func renderReminder(st *model.Student, now time.Time) (string, error) {
	view := reminderView{
		Name:   st.Name,
		Handle: st.CodeforcesHandle,
		Rating: st.CurrentRating,
		Never:  st.LastSubmissionAt == nil,
	}
	if st.LastSubmissionAt != nil {
		view.DaysInactive = int(now.Sub(*st.LastSubmissionAt).Hours() / 24)
		view.LastSubmission = st.LastSubmissionAt.UTC().Format(model.DateLayout)
	}
	var buf bytes.Buffer
	if err := reminderTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("渲染提醒邮件失败: %w", err)
	}
	return buf.String(), nil
}

// AfterBatch 批量同步结束后的回调，失败只记日志
func (s *ReminderService) AfterBatch(ctx context.Context, batch *BatchResult) {
	if _, err := s.SendReminders(ctx); err != nil {
		s.logger.WithError(err).WithField("batch_total", batch.Total).Error("批量同步后发送提醒失败")
	}
}
