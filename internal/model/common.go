package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// SyncStatus 学生同步状态：pending → syncing → success/error，success/error 可再次进入 syncing
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSyncing SyncStatus = "syncing"
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
)

// 评测结果
const (
	VerdictOK                = "OK"
	VerdictWrongAnswer       = "WRONG_ANSWER"
	VerdictTimeLimitExceeded = "TIME_LIMIT_EXCEEDED"
)

// ActiveWindow 最近一次提交在该窗口内视为活跃
const ActiveWindow = 7 * 24 * time.Hour

// DateLayout 每日统计使用的日期格式
const DateLayout = "2006-01-02"

// ProfileUpdate 对账第一步一次性写回学生的字段
type ProfileUpdate struct {
	CurrentRating    int
	MaxRating        int
	LastSubmissionAt *time.Time
	IsActive         bool
	Avatar           string // 为空时保留原值
	Codeforces       CodeforcesProfile
}

// IsActiveAt 根据最近提交时间判断是否活跃
func IsActiveAt(lastSubmission *time.Time, now time.Time) bool {
	if lastSubmission == nil {
		return false
	}
	return now.Sub(*lastSubmission) < ActiveWindow
}

// EncodeTags 标签转 JSON 列，nil 存为 []
func EncodeTags(tags []string) datatypes.JSON {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return raw
}

func decodeTags(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return []string{}
	}
	return tags
}
