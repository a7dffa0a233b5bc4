package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/lamms/internal/model"
)

// sessionsAccountUnique はsessions.account_idの一意制約名。
const sessionsAccountUnique = "sessions_account_id_key"

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// ReplaceForAccount は既存セッションを削除してから新しいセッションを作成する。
// アカウント行をFOR UPDATEでロックするため、同一アカウントへの並行ログインは直列化される。
func (r *PostgresSessionRepo) ReplaceForAccount(ctx context.Context, session *model.Session) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. アカウント行をロック
	var lockedID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM accounts WHERE id = $1 FOR UPDATE`,
		session.AccountID,
	).Scan(&lockedID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("account not found: %s", session.AccountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	// 2. 既存セッションをすべて削除
	rows, err := tx.QueryContext(ctx,
		`DELETE FROM sessions WHERE account_id = $1 RETURNING id`,
		session.AccountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	var revoked []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan revoked session: %w", err)
		}
		revoked = append(revoked, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate revoked sessions: %w", err)
	}
	rows.Close()

	// 3. 新しいセッションを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, account_id, token_hash, role, ip_address, user_agent, created_at, last_activity, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		session.ID, session.AccountID, session.TokenHash, string(session.Role),
		nullIfEmpty(session.IPAddress), nullIfEmpty(session.UserAgent),
		session.CreatedAt, session.LastActivity, session.ExpiresAt,
	)
	if isUniqueViolation(err, sessionsAccountUnique) {
		return nil, ErrSessionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err, sessionsAccountUnique) {
			return nil, ErrSessionConflict
		}
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return revoked, nil
}

// FindByTokenHash はトークンハッシュでセッションを取得する。
// 期限切れのセッションも返す。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error) {
	var (
		session   model.Session
		role      string
		ipAddress sql.NullString
		userAgent sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, token_hash, role, ip_address, user_agent, created_at, last_activity, expires_at
		 FROM sessions
		 WHERE token_hash = $1`,
		tokenHash,
	).Scan(
		&session.ID, &session.AccountID, &session.TokenHash, &role, &ipAddress, &userAgent,
		&session.CreatedAt, &session.LastActivity, &session.ExpiresAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	session.Role = model.Role(role)
	session.IPAddress = ipAddress.String
	session.UserAgent = userAgent.String
	return &session, nil
}

// TouchLastActivity はセッションのlast_activityを更新する。
func (r *PostgresSessionRepo) TouchLastActivity(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByAccountID は指定アカウントの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByAccountID(ctx context.Context, accountID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete account sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
