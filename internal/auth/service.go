// Package auth はログイン、トークン認証、ログアウト、セッション確認を提供する。
// 1アカウントにつき有効なセッションは常に1件までに制限される。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/lamms/internal/lock"
	"github.com/hitoshi/lamms/internal/metrics"
	"github.com/hitoshi/lamms/internal/model"
	"github.com/hitoshi/lamms/internal/repository"
	"github.com/hitoshi/lamms/internal/security"
)

// DefaultSessionTTL はセッションの有効期間のデフォルト値で、上限でもある。
const DefaultSessionTTL = 8 * time.Hour

// PasswordVerifier はパスワードハッシュの検証インターフェース。
// hashが空の場合もダミー比較を行い、falseを返すこと。
type PasswordVerifier interface {
	Verify(hash, password string) (bool, error)
}

// TokenIssuer は不透明トークンの生成インターフェース。
// 平文トークンと保存用ハッシュを返す。
type TokenIssuer interface {
	Generate() (plain, hash string, err error)
}

// ProfileLoader はロール別プロフィールの読み込みインターフェース。
type ProfileLoader interface {
	Load(ctx context.Context, accountID string, role model.Role) (model.Profile, error)
}

// UserAgentSanitizer はリクエスト元のUser-Agentを保存用に整形する。
type UserAgentSanitizer interface {
	UserAgent(raw string) string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionTTL time.Duration
}

// Dependencies はServiceの依存をまとめた構造体。
// Locker、Metrics、Sanitizer、Nowは省略可能。
type Dependencies struct {
	Accounts  repository.AccountRepository
	Sessions  repository.SessionRepository
	Audit     repository.AuditRepository
	Profiles  ProfileLoader
	Passwords PasswordVerifier
	Tokens    TokenIssuer
	Locker    lock.Locker
	Metrics   metrics.MetricsCollector
	Sanitizer UserAgentSanitizer
	Now       func() time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	accounts  repository.AccountRepository
	sessions  repository.SessionRepository
	audit     repository.AuditRepository
	profiles  ProfileLoader
	passwords PasswordVerifier
	tokens    TokenIssuer
	locker    lock.Locker
	metrics   metrics.MetricsCollector
	sanitizer UserAgentSanitizer
	now       func() time.Time
	config    ServiceConfig
}

// NewService はServiceを生成する。
// SessionTTLは0以下または8時間超の場合にDefaultSessionTTLとなる。
func NewService(deps Dependencies, config ServiceConfig) *Service {
	if config.SessionTTL <= 0 || config.SessionTTL > DefaultSessionTTL {
		config.SessionTTL = DefaultSessionTTL
	}
	s := &Service{
		accounts:  deps.Accounts,
		sessions:  deps.Sessions,
		audit:     deps.Audit,
		profiles:  deps.Profiles,
		passwords: deps.Passwords,
		tokens:    deps.Tokens,
		locker:    deps.Locker,
		metrics:   deps.Metrics,
		sanitizer: deps.Sanitizer,
		now:       deps.Now,
		config:    config,
	}
	if s.locker == nil {
		s.locker = lock.NoopLocker{}
	}
	if s.metrics == nil {
		s.metrics = metrics.NopCollector{}
	}
	if s.sanitizer == nil {
		s.sanitizer = security.NewMetadataSanitizer()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// LoginInput はログインの入力。
type LoginInput struct {
	Identifier string // emailまたはusername
	Password   string
	IPAddress  string
	UserAgent  string
}

// LoginResult はログイン成功時の結果。Tokenは平文で、この場でのみ返される。
type LoginResult struct {
	Token   string
	Account *model.Account
	Profile model.Profile
	Session *model.Session
}

// Principal は認証済みリクエストの主体。
type Principal struct {
	Account *model.Account
	Session *model.Session
}

// SessionStatus はセッション確認の結果。
type SessionStatus struct {
	Principal
	ExpiresAt     time.Time
	TimeRemaining int // 残り時間（分、切り上げ）
}

// Login は認証情報を検証し、新しいセッションを発行する。
// 同一アカウントの既存セッションはすべて失効する。
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	identifier := strings.TrimSpace(in.Identifier)
	if fields := validateLoginInput(identifier, in.Password); fields != nil {
		return nil, model.NewValidationError(fields)
	}

	// 1. email OR username で検索
	account, err := s.accounts.FindByIdentifier(ctx, identifier)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginError)
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	// 2. パスワード検証。アカウントが存在しない場合もダミー比較を行う
	var hash string
	if account != nil {
		hash = account.PasswordHash
	}
	ok, err := s.passwords.Verify(hash, in.Password)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginError)
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if account == nil || !ok {
		s.metrics.RecordLogin(metrics.LoginInvalidCredentials)
		event := &model.AuditEvent{
			Action:   model.AuditLoginFailed,
			Metadata: map[string]any{"identifier": identifier},
		}
		if account != nil {
			event.AccountID = account.ID
		}
		s.recordAudit(ctx, event, in)
		slog.Info("login failed",
			slog.String("reason", "invalid_credentials"),
			slog.String("ip_address", in.IPAddress),
		)
		return nil, model.NewInvalidCredentialsError()
	}

	// 3. 無効化されたアカウント（パスワードが正しい場合のみ区別する）
	if !account.IsActive {
		s.metrics.RecordLogin(metrics.LoginDeactivated)
		s.recordAudit(ctx, &model.AuditEvent{
			AccountID: account.ID,
			Action:    model.AuditLoginDeactivated,
		}, in)
		slog.Info("login rejected for deactivated account", slog.String("account_id", account.ID))
		return nil, model.NewAccountDeactivatedError()
	}

	// 4. プロフィールはセッション作成前に読み込む
	profile, err := s.profiles.Load(ctx, account.ID, account.Role)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeProfileNotFound {
			s.metrics.RecordLogin(metrics.LoginProfileNotFound)
			slog.Warn("account has no profile",
				slog.String("account_id", account.ID),
				slog.String("role", string(account.Role)),
			)
			return nil, err
		}
		s.metrics.RecordLogin(metrics.LoginError)
		return nil, err
	}

	// 5. トークン発行とセッションの置き換え
	plain, tokenHash, err := s.tokens.Generate()
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginError)
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:           uuid.New().String(),
		AccountID:    account.ID,
		TokenHash:    tokenHash,
		Role:         account.Role,
		IPAddress:    in.IPAddress,
		UserAgent:    s.sanitizer.UserAgent(in.UserAgent),
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.config.SessionTTL),
	}

	revoked, err := s.replaceSession(ctx, session)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginError)
		return nil, err
	}

	if len(revoked) > 0 {
		s.metrics.RecordSessionsRevoked(metrics.RevokeSuperseded, len(revoked))
		s.recordAudit(ctx, &model.AuditEvent{
			AccountID: account.ID,
			SessionID: session.ID,
			Action:    model.AuditSessionSuperseded,
			Metadata:  map[string]any{"revoked_session_ids": revoked},
		}, in)
	}
	s.metrics.RecordLogin(metrics.LoginSuccess)
	s.recordAudit(ctx, &model.AuditEvent{
		AccountID: account.ID,
		SessionID: session.ID,
		Action:    model.AuditLoginSuccess,
	}, in)
	slog.Info("user logged in",
		slog.String("account_id", account.ID),
		slog.String("role", string(account.Role)),
		slog.Int("revoked_sessions", len(revoked)),
	)

	return &LoginResult{
		Token:   plain,
		Account: account,
		Profile: profile,
		Session: session,
	}, nil
}

// replaceSession はアカウント単位のロックを取得し、既存セッションを新しいセッションで置き換える。
// 並行ログインで一意制約に違反した場合は1回だけ再試行する。
func (s *Service) replaceSession(ctx context.Context, session *model.Session) ([]string, error) {
	unlock, err := s.locker.Lock(ctx, session.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire login lock: %w", err)
	}
	defer unlock()

	revoked, err := s.sessions.ReplaceForAccount(ctx, session)
	if errors.Is(err, repository.ErrSessionConflict) {
		slog.Warn("concurrent login detected, retrying session replacement",
			slog.String("account_id", session.AccountID),
		)
		revoked, err = s.sessions.ReplaceForAccount(ctx, session)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to replace session: %w", err)
	}
	return revoked, nil
}

// Authenticate はトークンを検証し、認証済みの主体を返す。
// 期限切れのセッションはその場で削除する。成功時はlast_activityを更新する。
func (s *Service) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		s.metrics.RecordAuthentication(metrics.AuthUnauthenticated)
		return nil, model.NewUnauthenticatedError()
	}

	session, err := s.sessions.FindByTokenHash(ctx, security.HashToken(token))
	if err != nil {
		s.metrics.RecordAuthentication(metrics.AuthError)
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		s.metrics.RecordAuthentication(metrics.AuthUnauthenticated)
		return nil, model.NewUnauthenticatedError()
	}

	now := s.now()
	if session.ExpiredAt(now) {
		if err := s.sessions.DeleteByID(ctx, session.ID); err != nil {
			s.metrics.RecordAuthentication(metrics.AuthError)
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		s.metrics.RecordAuthentication(metrics.AuthExpired)
		s.metrics.RecordSessionsRevoked(metrics.RevokeExpired, 1)
		s.recordAudit(ctx, &model.AuditEvent{
			AccountID: session.AccountID,
			SessionID: session.ID,
			Action:    model.AuditSessionExpired,
		}, LoginInput{})
		slog.Info("session expired",
			slog.String("account_id", session.AccountID),
			slog.String("session_id", session.ID),
		)
		return nil, model.NewSessionExpiredError()
	}

	account, err := s.accounts.FindByID(ctx, session.AccountID)
	if err != nil {
		s.metrics.RecordAuthentication(metrics.AuthError)
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		s.metrics.RecordAuthentication(metrics.AuthUnauthenticated)
		return nil, model.NewUnauthenticatedError()
	}

	if err := s.sessions.TouchLastActivity(ctx, session.ID, now); err != nil {
		s.metrics.RecordAuthentication(metrics.AuthError)
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	session.LastActivity = now

	s.metrics.RecordAuthentication(metrics.AuthOK)
	return &Principal{Account: account, Session: session}, nil
}

// Logout はトークンに紐づくセッションを削除する。
// 不明なトークンや失効済みのトークンでも成功として扱う。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	session, err := s.sessions.FindByTokenHash(ctx, security.HashToken(token))
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil
	}

	if err := s.sessions.DeleteByID(ctx, session.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.metrics.RecordSessionsRevoked(metrics.RevokeLogout, 1)
	s.recordAudit(ctx, &model.AuditEvent{
		AccountID: session.AccountID,
		SessionID: session.ID,
		Action:    model.AuditLogout,
	}, LoginInput{IPAddress: session.IPAddress, UserAgent: session.UserAgent})
	slog.Info("user logged out",
		slog.String("account_id", session.AccountID),
		slog.String("session_id", session.ID),
	)
	return nil
}

// CheckSession はAuthenticateと同じ検証を行い、残り有効時間を返す。
func (s *Service) CheckSession(ctx context.Context, token string) (*SessionStatus, error) {
	principal, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	return &SessionStatus{
		Principal:     *principal,
		ExpiresAt:     principal.Session.ExpiresAt,
		TimeRemaining: minutesRemaining(principal.Session.ExpiresAt, principal.Session.LastActivity),
	}, nil
}

// LoadProfile は認証済みアカウントのプロフィールを読み込む。
func (s *Service) LoadProfile(ctx context.Context, account *model.Account) (model.Profile, error) {
	return s.profiles.Load(ctx, account.ID, account.Role)
}

// minutesRemaining はnowからexpiresAtまでの残り時間を分単位で切り上げて返す。
func minutesRemaining(expiresAt, now time.Time) int {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}

// validateLoginInput は必須項目を検証する。問題がなければnilを返す。
func validateLoginInput(identifier, password string) map[string][]string {
	fields := map[string][]string{}
	if identifier == "" {
		fields["email"] = []string{"The email field is required."}
	}
	if password == "" {
		fields["password"] = []string{"The password field is required."}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// recordAudit は監査ログを記録する。失敗してもリクエストは失敗させない。
func (s *Service) recordAudit(ctx context.Context, event *model.AuditEvent, in LoginInput) {
	if s.audit == nil {
		return
	}
	event.ID = uuid.New().String()
	event.IPAddress = in.IPAddress
	event.UserAgent = s.sanitizer.UserAgent(in.UserAgent)
	event.CreatedAt = s.now()

	if err := s.audit.Insert(ctx, event); err != nil {
		slog.Warn("failed to record audit event",
			slog.String("action", event.Action),
			slog.String("account_id", event.AccountID),
			slog.String("error", err.Error()),
		)
	}
}
