package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/lamms/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したロール別プロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindAdminByAccountID は管理者プロフィールを取得する。
func (r *PostgresProfileRepo) FindAdminByAccountID(ctx context.Context, accountID string) (*model.AdminProfile, error) {
	var (
		p        model.AdminProfile
		position sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, first_name, last_name, position
		 FROM admins WHERE account_id = $1`,
		accountID,
	).Scan(&p.ID, &p.AccountID, &p.FirstName, &p.LastName, &position)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find admin profile: %w", err)
	}
	p.Position = position.String
	return &p, nil
}

// FindTeacherByAccountID は教員プロフィールを担当一覧付きで取得する。
func (r *PostgresProfileRepo) FindTeacherByAccountID(ctx context.Context, accountID string) (*model.TeacherProfile, error) {
	var (
		p     model.TeacherProfile
		phone sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, first_name, last_name, phone_number
		 FROM teachers WHERE account_id = $1`,
		accountID,
	).Scan(&p.ID, &p.AccountID, &p.FirstName, &p.LastName, &phone)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find teacher profile: %w", err)
	}
	p.PhoneNumber = phone.String

	assignments, err := r.findAssignments(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Assignments = assignments
	return &p, nil
}

// findAssignments は教員の有効な担当一覧を取得する。
// 主担当を先頭に、セクション名順で返す。
func (r *PostgresProfileRepo) findAssignments(ctx context.Context, teacherID string) ([]model.TeacherAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT sec.id, sec.name, sec.grade_level, sub.id, sub.name, ta.is_primary
		 FROM teacher_assignments ta
		 JOIN sections sec ON sec.id = ta.section_id
		 LEFT JOIN subjects sub ON sub.id = ta.subject_id
		 WHERE ta.teacher_id = $1 AND ta.is_active = TRUE
		 ORDER BY ta.is_primary DESC, sec.name, sub.name`,
		teacherID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list teacher assignments: %w", err)
	}
	defer rows.Close()

	assignments := []model.TeacherAssignment{}
	for rows.Next() {
		var (
			a           model.TeacherAssignment
			subjectID   sql.NullString
			subjectName sql.NullString
		)
		if err := rows.Scan(&a.SectionID, &a.SectionName, &a.GradeLevel, &subjectID, &subjectName, &a.IsPrimary); err != nil {
			return nil, fmt.Errorf("failed to scan teacher assignment: %w", err)
		}
		a.SubjectID = subjectID.String
		a.SubjectName = subjectName.String
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate teacher assignments: %w", err)
	}
	return assignments, nil
}

// FindGuardhouseByAccountID は守衛所ユーザーのプロフィールを取得する。
func (r *PostgresProfileRepo) FindGuardhouseByAccountID(ctx context.Context, accountID string) (*model.GuardhouseProfile, error) {
	var (
		p       model.GuardhouseProfile
		station sql.NullString
		shift   sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, first_name, last_name, station, shift
		 FROM guardhouse_users WHERE account_id = $1`,
		accountID,
	).Scan(&p.ID, &p.AccountID, &p.FirstName, &p.LastName, &station, &shift)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find guardhouse profile: %w", err)
	}
	p.Station = station.String
	p.Shift = shift.String
	return &p, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
