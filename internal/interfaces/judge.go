package interfaces

import (
	"context"
	"errors"

	"ProgressSync/internal/model"
)

var (
	// ErrHandleNotFound 评测平台上不存在该 handle
	ErrHandleNotFound = errors.New("handle not found on judge")
	// ErrUpstreamUnavailable 评测平台超时或网络故障
	ErrUpstreamUnavailable = errors.New("judge upstream unavailable")
)

// JudgeClient 评测平台只读接口，所有实现必须自行限速
type JudgeClient interface {
	// Name 平台名称
	Name() string
	// FetchProfile 拉取用户资料；不存在时返回 ErrHandleNotFound
	FetchProfile(ctx context.Context, handle string) (*model.CFUser, error)
	// FetchRatingHistory 拉取积分历史；失败时退化为空列表
	FetchRatingHistory(ctx context.Context, handle string) ([]model.CFRatingChange, error)
	// FetchSubmissions 拉取提交记录（from 从 1 开始）；失败时退化为空列表
	FetchSubmissions(ctx context.Context, handle string, from, count int) ([]model.CFSubmission, error)
}

// ProfileCache 用户资料缓存（校验 handle 时使用）
type ProfileCache interface {
	Get(ctx context.Context, handle string) (*model.CFUser, bool, error)
	Set(ctx context.Context, handle string, user *model.CFUser) error
}

// Mailer 邮件发送
type Mailer interface {
	Send(ctx context.Context, to []string, subject, htmlBody string) error
}
