// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/lamms/internal/model"
)

// ErrSessionConflict は同一アカウントのセッションが並行して作成され、
// sessions.account_id の一意制約に違反した場合に返される。
var ErrSessionConflict = errors.New("session already exists for account")

// ErrDuplicateAccount はemailまたはusernameが既に使用されている場合に返される。
var ErrDuplicateAccount = errors.New("account with same email or username already exists")

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByIdentifier はemailまたはusernameが一致するアカウントを取得する。
	// 大文字小文字を区別する完全一致で、複数該当する場合は最初の1件を返す。
	// 見つからない場合はnilを返す。
	FindByIdentifier(ctx context.Context, identifier string) (*model.Account, error)

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// Create はアカウントを作成する。
	// emailまたはusernameが重複する場合はErrDuplicateAccountを返す。
	Create(ctx context.Context, account *model.Account) error

	// UpdateActive はアカウントの有効フラグを更新する。
	// 対象が存在しない場合はfalseを返す。
	UpdateActive(ctx context.Context, id string, active bool, updatedAt time.Time) (bool, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// ReplaceForAccount はアカウントの既存セッションをすべて削除してから
	// 新しいセッションを作成する。削除と作成は同一トランザクション内で
	// アカウント行をロックした状態で行う。削除したセッションIDを返す。
	// 一意制約違反の場合はErrSessionConflictを返す。
	ReplaceForAccount(ctx context.Context, session *model.Session) ([]string, error)

	// FindByTokenHash はトークンハッシュでセッションを取得する。
	// 期限切れのセッションも返す（期限判定は呼び出し側で行う）。
	// 見つからない場合はnilを返す。
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error)

	// TouchLastActivity はセッションのlast_activityを更新する。expires_atは変更しない。
	TouchLastActivity(ctx context.Context, id string, at time.Time) error

	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByAccountID は指定アカウントの全セッションを削除し、削除件数を返す。
	DeleteByAccountID(ctx context.Context, accountID string) (int64, error)
}

// ProfileRepository はロール別プロフィールの取得インターフェース。
// いずれのメソッドも見つからない場合はnilを返す。
type ProfileRepository interface {
	FindAdminByAccountID(ctx context.Context, accountID string) (*model.AdminProfile, error)
	FindTeacherByAccountID(ctx context.Context, accountID string) (*model.TeacherProfile, error)
	FindGuardhouseByAccountID(ctx context.Context, accountID string) (*model.GuardhouseProfile, error)
}

// AuditRepository は監査ログの永続化インターフェース。
type AuditRepository interface {
	// Insert は監査イベントを1件記録する。
	Insert(ctx context.Context, event *model.AuditEvent) error
}

