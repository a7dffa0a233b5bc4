// Package model はドメインモデルを定義する。
package model

import "time"

// Role はアカウントのロールを表す。
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleTeacher    Role = "teacher"
	RoleGuardhouse Role = "guardhouse"
)

// Valid はロールが既知の値かどうかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleGuardhouse:
		return true
	default:
		return false
	}
}

// Account はログイン可能なアカウントを表す。
// PasswordHashはbcryptハッシュで、レスポンスに含めてはならない。
type Account struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はアカウントのログインセッションを表す。
// 1アカウントにつき有効なセッションは最大1件。
// トークン本体は保存せず、SHA-256ハッシュのみを保持する。
type Session struct {
	ID           string
	AccountID    string
	TokenHash    string
	Role         Role
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
}

// ExpiredAt はnowの時点でセッションが期限切れかどうかを返す。
// expires_atちょうどの時刻はまだ有効とみなす。
func (s *Session) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
