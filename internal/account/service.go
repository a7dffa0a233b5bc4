// Package account はアカウント管理のドメインロジックを提供する。
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/lamms/internal/metrics"
	"github.com/hitoshi/lamms/internal/model"
	"github.com/hitoshi/lamms/internal/repository"
)

// minPasswordLength はパスワードの最小文字数。
const minPasswordLength = 8

// PasswordHasher はパスワードハッシュ生成のインターフェース。
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Service はアカウント管理のサービス層。
// アカウントの作成と有効・無効の切り替えを提供する。
type Service struct {
	accounts repository.AccountRepository
	sessions repository.SessionRepository
	audit    repository.AuditRepository
	hasher   PasswordHasher
	metrics  metrics.MetricsCollector
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// auditとmetricsはnilでもよい。
func NewService(
	accounts repository.AccountRepository,
	sessions repository.SessionRepository,
	audit repository.AuditRepository,
	hasher PasswordHasher,
	m metrics.MetricsCollector,
) *Service {
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &Service{
		accounts: accounts,
		sessions: sessions,
		audit:    audit,
		hasher:   hasher,
		metrics:  m,
		now:      time.Now,
	}
}

// CreateInput はアカウント作成の入力。
type CreateInput struct {
	Email    string
	Username string
	Password string
	Role     model.Role
}

// Create はアカウントを作成する。作成直後のアカウントは有効状態。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Account, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if fields := validateCreateInput(in); fields != nil {
		return nil, model.NewValidationError(fields)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := s.now()
	account := &model.Account{
		ID:           uuid.New().String(),
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
		Role:         in.Role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateAccount) {
			return nil, model.NewValidationError(map[string][]string{
				"email": {"The email or username has already been taken."},
			})
		}
		return nil, fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}

	slog.Info("アカウントを作成しました",
		slog.String("account_id", account.ID),
		slog.String("role", string(account.Role)),
	)
	return account, nil
}

// SetActive はアカウントの有効フラグを更新する。
// 無効化する場合はそのアカウントのセッションをすべて削除する。
// actorIDは操作した管理者のアカウントID。
func (s *Service) SetActive(ctx context.Context, actorID, accountID string, active bool) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError(accountID)
	}
	if !active && actorID == accountID {
		return nil, model.NewValidationError(map[string][]string{
			"is_active": {"You cannot deactivate your own account."},
		})
	}

	now := s.now()
	updated, err := s.accounts.UpdateActive(ctx, accountID, active, now)
	if err != nil {
		return nil, fmt.Errorf("アカウント状態の更新に失敗しました: %w", err)
	}
	if !updated {
		return nil, model.NewAccountNotFoundError(accountID)
	}
	account.IsActive = active
	account.UpdatedAt = now

	var revoked int64
	if !active {
		revoked, err = s.sessions.DeleteByAccountID(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
		s.metrics.RecordSessionsRevoked(metrics.RevokeDeactivated, int(revoked))
	}

	s.recordAudit(ctx, &model.AuditEvent{
		AccountID: accountID,
		Action:    model.AuditAccountStatus,
		Metadata: map[string]any{
			"actor_id":         actorID,
			"is_active":        active,
			"revoked_sessions": revoked,
		},
	})

	slog.Info("アカウント状態を更新しました",
		slog.String("account_id", accountID),
		slog.String("actor_id", actorID),
		slog.Bool("is_active", active),
		slog.Int64("revoked_sessions", revoked),
	)
	return account, nil
}

func (s *Service) recordAudit(ctx context.Context, event *model.AuditEvent) {
	if s.audit == nil {
		return
	}
	event.ID = uuid.New().String()
	event.CreatedAt = s.now()
	if err := s.audit.Insert(ctx, event); err != nil {
		slog.Warn("監査ログの記録に失敗しました",
			slog.String("action", event.Action),
			slog.String("error", err.Error()),
		)
	}
}

// validateCreateInput は作成入力を検証する。問題がなければnilを返す。
func validateCreateInput(in CreateInput) map[string][]string {
	fields := map[string][]string{}
	if in.Email == "" {
		fields["email"] = []string{"The email field is required."}
	} else if _, err := mail.ParseAddress(in.Email); err != nil {
		fields["email"] = []string{"The email must be a valid email address."}
	}
	if len(in.Password) < minPasswordLength {
		fields["password"] = []string{fmt.Sprintf("The password must be at least %d characters.", minPasswordLength)}
	}
	if !in.Role.Valid() {
		fields["role"] = []string{"The selected role is invalid."}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
