package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/lamms/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

const accountColumns = `id, email, username, password_hash, role, is_active, created_at, updated_at`

// FindByIdentifier はemailまたはusernameが一致するアカウントを取得する。
// OR検索で最初に見つかった1件を返し、どちらの列で一致したかは区別しない。
func (r *PostgresAccountRepo) FindByIdentifier(ctx context.Context, identifier string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts
		 WHERE email = $1 OR username = $1
		 ORDER BY created_at, id
		 LIMIT 1`,
		identifier,
	)

	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by identifier: %w", err)
	}
	return account, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
// UUIDとして解釈できないIDは該当なしとして扱う。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if !isUUID(id) {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`,
		id,
	)

	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return account, nil
}

// Create はアカウントを作成する。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, username, password_hash, role, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID, account.Email, nullIfEmpty(account.Username), account.PasswordHash,
		string(account.Role), account.IsActive, account.CreatedAt, account.UpdatedAt,
	)
	if isUniqueViolation(err, "") {
		return ErrDuplicateAccount
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// UpdateActive はアカウントの有効フラグを更新する。
func (r *PostgresAccountRepo) UpdateActive(ctx context.Context, id string, active bool, updatedAt time.Time) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET is_active = $2, updated_at = $3 WHERE id = $1`,
		id, active, updatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update account status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// scanAccount は1行をAccountに変換する。usernameはNULLを許容する。
func scanAccount(row *sql.Row) (*model.Account, error) {
	var (
		account  model.Account
		username sql.NullString
		role     string
	)
	err := row.Scan(
		&account.ID, &account.Email, &username, &account.PasswordHash,
		&role, &account.IsActive, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	account.Username = username.String
	account.Role = model.Role(role)
	return &account, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
