package model

import "time"

// 監査ログのアクション名
const (
	AuditLoginSuccess      = "auth.login.success"
	AuditLoginFailed       = "auth.login.failed"
	AuditLoginDeactivated  = "auth.login.deactivated"
	AuditSessionSuperseded = "auth.session.superseded"
	AuditSessionExpired    = "auth.session.expired"
	AuditLogout            = "auth.logout"
	AuditAccountStatus     = "account.status.changed"
)

// AuditEvent は認証関連の監査ログ1件を表す。
type AuditEvent struct {
	ID        string
	AccountID string // 空の場合はNULLとして保存
	SessionID string // 空の場合はNULLとして保存
	Action    string
	IPAddress string
	UserAgent string
	Metadata  map[string]any
	CreatedAt time.Time
}
