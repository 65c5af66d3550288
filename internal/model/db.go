package model

import (
	"time"

	"gorm.io/datatypes"
)

// CodeforcesProfile 评测平台资料快照（按原样落库，字段缺失时为零值）
type CodeforcesProfile struct {
	Rank         string     `gorm:"column:rank;type:varchar(64)" json:"rank"`
	MaxRank      string     `gorm:"column:max_rank;type:varchar(64)" json:"max_rank"`
	Contribution int        `gorm:"column:contribution;type:int" json:"contribution"`
	Organization string     `gorm:"column:organization;type:varchar(256)" json:"organization"`
	Country      string     `gorm:"column:country;type:varchar(128)" json:"country"`
	City         string     `gorm:"column:city;type:varchar(128)" json:"city"`
	LastOnlineAt *time.Time `gorm:"column:last_online_at" json:"last_online_at"`
	RegisteredAt *time.Time `gorm:"column:registered_at" json:"registered_at"`
}

// Student 被跟踪的学生（一人一条，codeforces_handle 为业务主键）
type Student struct {
	ID                 uint64            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name               string            `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Email              string            `gorm:"column:email;type:varchar(256);uniqueIndex:uk_student_email;not null" json:"email"`
	Phone              string            `gorm:"column:phone;type:varchar(32)" json:"phone"`
	CodeforcesHandle   string            `gorm:"column:codeforces_handle;type:varchar(64);uniqueIndex:uk_student_handle;not null" json:"codeforces_handle"`
	CurrentRating      int               `gorm:"column:current_rating;type:int;not null" json:"current_rating"`
	MaxRating          int               `gorm:"column:max_rating;type:int;not null" json:"max_rating"`
	LastSubmissionAt   *time.Time        `gorm:"column:last_submission_at;index" json:"last_submission_at"`
	IsActive           bool              `gorm:"column:is_active;not null;index" json:"is_active"`
	EmailNotifications bool              `gorm:"column:email_notifications;not null" json:"email_notifications"`
	LastEmailSentAt    *time.Time        `gorm:"column:last_email_sent_at" json:"last_email_sent_at"`
	ReminderCount      int               `gorm:"column:reminder_count;type:int;not null" json:"reminder_count"`
	Avatar             string            `gorm:"column:avatar;type:varchar(512)" json:"avatar"`
	JoinDate           time.Time         `gorm:"column:join_date" json:"join_date"`
	Codeforces         CodeforcesProfile `gorm:"embedded;embeddedPrefix:cf_" json:"codeforces_data"`
	SyncStatus         SyncStatus        `gorm:"column:sync_status;type:varchar(16);not null;index" json:"sync_status"`
	SyncError          *string           `gorm:"column:sync_error;type:text" json:"sync_error"`
	LastSyncAt         *time.Time        `gorm:"column:last_sync_at" json:"last_sync_at"`
	CreatedAt          time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"column:updated_at" json:"updated_at"`
}

// ContestRecord 学生参加过的一场比赛（student_id + contest_id 唯一）
type ContestRecord struct {
	ID              uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	StudentID       uint64    `gorm:"column:student_id;not null;uniqueIndex:uk_student_contest" json:"student_id"`
	Handle          string    `gorm:"column:handle;type:varchar(64);not null" json:"handle"`
	ContestID       int64     `gorm:"column:contest_id;not null;uniqueIndex:uk_student_contest" json:"contest_id"`
	ContestName     string    `gorm:"column:contest_name;type:varchar(256);not null" json:"contest_name"`
	Rank            int       `gorm:"column:rank;type:int" json:"rank"`
	OldRating       int       `gorm:"column:old_rating;type:int" json:"old_rating"`
	NewRating       int       `gorm:"column:new_rating;type:int" json:"new_rating"`
	RatingChange    int       `gorm:"column:rating_change;type:int" json:"rating_change"`
	RatingUpdatedAt time.Time `gorm:"column:rating_updated_at;not null;index" json:"rating_updated_at"`
	ProblemsSolved  int       `gorm:"column:problems_solved;type:int" json:"problems_solved"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// SolvedProblem 学生首次 AC 的题目（student_id + contest_id + problem_index 唯一，submission_id 全局唯一）
type SolvedProblem struct {
	ID                  uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	StudentID           uint64         `gorm:"column:student_id;not null;uniqueIndex:uk_student_problem" json:"student_id"`
	Handle              string         `gorm:"column:handle;type:varchar(64);not null" json:"handle"`
	ContestID           int64          `gorm:"column:contest_id;not null;uniqueIndex:uk_student_problem" json:"contest_id"`
	ProblemIndex        string         `gorm:"column:problem_index;type:varchar(16);not null;uniqueIndex:uk_student_problem" json:"problem_index"`
	ProblemName         string         `gorm:"column:problem_name;type:varchar(256);not null" json:"problem_name"`
	ProblemRating       *int           `gorm:"column:problem_rating;type:int;index" json:"problem_rating"`
	Tags                datatypes.JSON `gorm:"column:tags" json:"tags"`
	Verdict             string         `gorm:"column:verdict;type:varchar(32);not null" json:"verdict"`
	SubmittedAt         time.Time      `gorm:"column:submitted_at;not null;index" json:"submitted_at"`
	SubmissionID        int64          `gorm:"column:submission_id;not null;uniqueIndex:uk_problem_submission" json:"submission_id"`
	Language            string         `gorm:"column:language;type:varchar(64)" json:"language"`
	TimeConsumedMillis  int64          `gorm:"column:time_consumed_millis" json:"time_consumed_millis"`
	MemoryConsumedBytes int64          `gorm:"column:memory_consumed_bytes" json:"memory_consumed_bytes"`
	CreatedAt           time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

// DailyActivity 学生每日提交统计（student_id + date 唯一，每次同步整体覆盖）
type DailyActivity struct {
	ID               uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	StudentID        uint64    `gorm:"column:student_id;not null;uniqueIndex:uk_student_date" json:"student_id"`
	Handle           string    `gorm:"column:handle;type:varchar(64);not null" json:"handle"`
	Date             string    `gorm:"column:date;type:varchar(10);not null;uniqueIndex:uk_student_date;index" json:"date"` // YYYY-MM-DD（UTC）
	Count            int       `gorm:"column:count;type:int" json:"count"`
	AcceptedCount    int       `gorm:"column:accepted_count;type:int" json:"accepted_count"`
	WrongAnswerCount int       `gorm:"column:wrong_answer_count;type:int" json:"wrong_answer_count"`
	TimeoutCount     int       `gorm:"column:timeout_count;type:int" json:"timeout_count"`
	OtherCount       int       `gorm:"column:other_count;type:int" json:"other_count"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Student) TableName() string       { return "students" }
func (ContestRecord) TableName() string { return "contest_records" }
func (SolvedProblem) TableName() string { return "solved_problems" }
func (DailyActivity) TableName() string { return "daily_activities" }

// AllModels 按依赖顺序返回需要迁移的表
func AllModels() []interface{} {
	return []interface{}{
		&Student{},
		&ContestRecord{},
		&SolvedProblem{},
		&DailyActivity{},
	}
}

// TagList 解析题目标签
func (p *SolvedProblem) TagList() []string {
	return decodeTags(p.Tags)
}
