package service

import (
	"errors"
	"fmt"

	"ProgressSync/internal/interfaces"
	"ProgressSync/internal/repository"

	"github.com/shopspring/decimal"
)

// 业务层错误，api 层据此映射 HTTP 状态码
var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("already exists")
	ErrSyncInProgress      = errors.New("sync already in progress")
	ErrUpstreamUnavailable = interfaces.ErrUpstreamUnavailable
)

// wrapRepoErr 把仓储层错误转换为业务层错误，保留原始错误链
func wrapRepoErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %s", ErrConflict, what)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func isRepoNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

// ratio 按 places 位小数四舍五入的 num/den，den 为 0 时返回 0
func ratio(num, den int64, places int32) float64 {
	if den == 0 {
		return 0
	}
	return decimal.NewFromInt(num).Div(decimal.NewFromInt(den)).Round(places).InexactFloat64()
}

// wrapJudgeErr 把评测平台错误转换为业务层错误
func wrapJudgeErr(err error, handle string) error {
	if errors.Is(err, interfaces.ErrHandleNotFound) {
		return fmt.Errorf("%w: codeforces handle %s: %w", ErrNotFound, handle, err)
	}
	return fmt.Errorf("拉取 %s 资料失败: %w", handle, err)
}
