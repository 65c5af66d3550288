package service

import (
	"context"
	"fmt"
	"strings"

	"ProgressSync/internal/interfaces"
	"ProgressSync/internal/model"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// HandleInfo 校验 handle 时返回给前端的资料
type HandleInfo struct {
	Handle       string `json:"handle"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Country      string `json:"country"`
	City         string `json:"city"`
	Organization string `json:"organization"`
	Rank         string `json:"rank"`
	Rating       int    `json:"rating"`
	MaxRating    int    `json:"max_rating"`
	Avatar       string `json:"avatar"`
}

// VerifyService 校验评测平台 handle 是否存在。
// 命中缓存直接返回；同一 handle 的并发校验只会发出一次请求。
type VerifyService struct {
	judge  interfaces.JudgeClient
	cache  interfaces.ProfileCache
	group  singleflight.Group
	logger *logrus.Logger
}

// NewVerifyService 创建校验服务；cache 可为 nil
func NewVerifyService(judge interfaces.JudgeClient, cache interfaces.ProfileCache, logger *logrus.Logger) *VerifyService {
	return &VerifyService{judge: judge, cache: cache, logger: logger}
}

// Verify handle 不存在返回 ErrNotFound，平台不可用返回 ErrUpstreamUnavailable
func (s *VerifyService) Verify(ctx context.Context, handle string) (*HandleInfo, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, fmt.Errorf("%w: handle is required", ErrValidation)
	}
	if !handlePattern.MatchString(handle) {
		return nil, fmt.Errorf("%w: codeforces handle %s", ErrNotFound, handle)
	}
	log := s.logger.WithField("handle", handle)

	if s.cache != nil {
		user, ok, err := s.cache.Get(ctx, handle)
		if err != nil {
			log.WithError(err).Warn("读取资料缓存失败，直接请求评测平台")
		} else if ok {
			log.Debug("资料缓存命中")
			return toHandleInfo(user), nil
		}
	}

	key := strings.ToLower(handle)
	// 请求不随某一个调用方取消，其余等待者仍能拿到结果
	ch := s.group.DoChan(key, func() (interface{}, error) {
		fetchCtx := context.WithoutCancel(ctx)
		user, err := s.judge.FetchProfile(fetchCtx, handle)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(fetchCtx, handle, user); err != nil {
				log.WithError(err).Warn("写入资料缓存失败")
			}
		}
		return user, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, wrapJudgeErr(res.Err, handle)
		}
		return toHandleInfo(res.Val.(*model.CFUser)), nil
	}
}

func toHandleInfo(u *model.CFUser) *HandleInfo {
	avatar := u.TitlePhoto
	if avatar == "" {
		avatar = u.Avatar
	}
	return &HandleInfo{
		Handle:       u.Handle,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Country:      u.Country,
		City:         u.City,
		Organization: u.Organization,
		Rank:         u.Rank,
		Rating:       u.Rating,
		MaxRating:    u.MaxRating,
		Avatar:       avatar,
	}
}
