package model

// Profile はロールごとのプロフィールドキュメント。
// JSONとしてそのままレスポンスに埋め込まれる。
type Profile interface {
	ProfileRole() Role
}

// AdminProfile は管理者のプロフィール。
type AdminProfile struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Position  string `json:"position"`
}

// ProfileRole はProfileインターフェースを実装する。
func (p *AdminProfile) ProfileRole() Role { return RoleAdmin }

// TeacherProfile は教員のプロフィール。担当セクション・科目を含む。
type TeacherProfile struct {
	ID          string              `json:"id"`
	AccountID   string              `json:"account_id"`
	FirstName   string              `json:"first_name"`
	LastName    string              `json:"last_name"`
	PhoneNumber string              `json:"phone_number"`
	Assignments []TeacherAssignment `json:"assignments"`
}

// ProfileRole はProfileインターフェースを実装する。
func (p *TeacherProfile) ProfileRole() Role { return RoleTeacher }

// TeacherAssignment は教員の担当（セクション×科目）を表す。
// SubjectIDが空の場合はホームルーム担任としての割り当て。
type TeacherAssignment struct {
	SectionID   string `json:"section_id"`
	SectionName string `json:"section_name"`
	GradeLevel  string `json:"grade_level"`
	SubjectID   string `json:"subject_id,omitempty"`
	SubjectName string `json:"subject_name,omitempty"`
	IsPrimary   bool   `json:"is_primary"`
}

// GuardhouseProfile は守衛所ユーザーのプロフィール。
type GuardhouseProfile struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Station   string `json:"station"`
	Shift     string `json:"shift"`
}

// ProfileRole はProfileインターフェースを実装する。
func (p *GuardhouseProfile) ProfileRole() Role { return RoleGuardhouse }
