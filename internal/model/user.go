package model

import "time"

// Role はユーザーの権限区分を表す。
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User はポータルに登録したユーザーを表す。
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Aadhaar      string
	Phone        string
	Role         Role
	CreatedAt    time.Time
}

// IsAdmin は管理者ユーザーかどうかを返す。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ApplicationStatus は申請の審査状態を表す。
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// ParseApplicationStatus は文字列を申請ステータスに変換する。
func ParseApplicationStatus(s string) (ApplicationStatus, bool) {
	switch ApplicationStatus(s) {
	case ApplicationPending, ApplicationApproved, ApplicationRejected:
		return ApplicationStatus(s), true
	}
	return "", false
}

// Application はスキームへの申請を表す。
// Documentsにはアップロード先ディレクトリ内の保存ファイル名を保持する。
type Application struct {
	ID         string
	UserID     string
	SchemeID   string
	Answers    string
	Documents  []string
	Status     ApplicationStatus
	AppliedAt  time.Time
	ReviewedAt *time.Time
}
