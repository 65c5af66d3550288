package model

import "time"

// CFUser Codeforces user.info 返回的用户信息
type CFUser struct {
	Handle                  string `json:"handle"`
	FirstName               string `json:"firstName"`
	LastName                string `json:"lastName"`
	Country                 string `json:"country"`
	City                    string `json:"city"`
	Organization            string `json:"organization"`
	Contribution            int    `json:"contribution"`
	Rank                    string `json:"rank"`
	Rating                  int    `json:"rating"`
	MaxRank                 string `json:"maxRank"`
	MaxRating               int    `json:"maxRating"`
	LastOnlineTimeSeconds   int64  `json:"lastOnlineTimeSeconds"`
	RegistrationTimeSeconds int64  `json:"registrationTimeSeconds"`
	Avatar                  string `json:"avatar"`
	TitlePhoto              string `json:"titlePhoto"`
}

// CFRatingChange Codeforces user.rating 中的一场比赛积分变化
type CFRatingChange struct {
	ContestID               int64  `json:"contestId"`
	ContestName             string `json:"contestName"`
	Handle                  string `json:"handle"`
	Rank                    int    `json:"rank"`
	RatingUpdateTimeSeconds int64  `json:"ratingUpdateTimeSeconds"`
	OldRating               int    `json:"oldRating"`
	NewRating               int    `json:"newRating"`
}

// CFProblem 提交对应的题目
type CFProblem struct {
	ContestID int64    `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Points    float64  `json:"points"`
	Rating    int      `json:"rating"`
	Tags      []string `json:"tags"`
}

// CFSubmission Codeforces user.status 中的一次提交
type CFSubmission struct {
	ID                  int64     `json:"id"`
	ContestID           int64     `json:"contestId"`
	CreationTimeSeconds int64     `json:"creationTimeSeconds"`
	RelativeTimeSeconds int64     `json:"relativeTimeSeconds"`
	Problem             CFProblem `json:"problem"`
	ProgrammingLanguage string    `json:"programmingLanguage"`
	Verdict             string    `json:"verdict"`
	Testset             string    `json:"testset"`
	PassedTestCount     int       `json:"passedTestCount"`
	TimeConsumedMillis  int64     `json:"timeConsumedMillis"`
	MemoryConsumedBytes int64     `json:"memoryConsumedBytes"`
}

// CreatedAt 提交时间（UTC）
func (s *CFSubmission) CreatedAt() time.Time {
	return time.Unix(s.CreationTimeSeconds, 0).UTC()
}

// UpdatedAt 积分更新时间（UTC）
func (r *CFRatingChange) UpdatedAt() time.Time {
	return time.Unix(r.RatingUpdateTimeSeconds, 0).UTC()
}

// UnixPtr 秒级时间戳转时间指针，0 视为缺失
func UnixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
