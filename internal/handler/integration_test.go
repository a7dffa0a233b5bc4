package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/lamms/internal/account"
	"github.com/hitoshi/lamms/internal/auth"
	"github.com/hitoshi/lamms/internal/middleware"
	"github.com/hitoshi/lamms/internal/model"
	"github.com/hitoshi/lamms/internal/profile"
	"github.com/hitoshi/lamms/internal/security"
)

// --- 統合テスト用のステートフルストア ---

// integrationState は統合テスト用の共有状態を保持する。
// Account/Session/Audit/Profileの各リポジトリを兼ねる。
type integrationState struct {
	mu       sync.Mutex
	accounts []*model.Account
	sessions map[string]*model.Session // key: session ID
	events   []*model.AuditEvent
	teachers map[string]*model.TeacherProfile
	admins   map[string]*model.AdminProfile
}

func newIntegrationState() *integrationState {
	return &integrationState{
		sessions: make(map[string]*model.Session),
		teachers: make(map[string]*model.TeacherProfile),
		admins:   make(map[string]*model.AdminProfile),
	}
}

func (s *integrationState) FindByIdentifier(_ context.Context, identifier string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == identifier || a.Username == identifier {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *integrationState) FindByID(_ context.Context, id string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *integrationState) Create(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append(s.accounts, a)
	return nil
}

func (s *integrationState) UpdateActive(_ context.Context, id string, active bool, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			a.IsActive = active
			a.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (s *integrationState) ReplaceForAccount(_ context.Context, session *model.Session) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var revoked []string
	for id, existing := range s.sessions {
		if existing.AccountID == session.AccountID {
			delete(s.sessions, id)
			revoked = append(revoked, id)
		}
	}
	copied := *session
	s.sessions[session.ID] = &copied
	return revoked, nil
}

func (s *integrationState) FindByTokenHash(_ context.Context, tokenHash string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.TokenHash == tokenHash {
			copied := *session
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *integrationState) TouchLastActivity(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		session.LastActivity = at
	}
	return nil
}

func (s *integrationState) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *integrationState) DeleteByAccountID(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, session := range s.sessions {
		if session.AccountID == accountID {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *integrationState) Insert(_ context.Context, event *model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *integrationState) FindAdminByAccountID(_ context.Context, accountID string) (*model.AdminProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admins[accountID], nil
}

func (s *integrationState) FindTeacherByAccountID(_ context.Context, accountID string) (*model.TeacherProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teachers[accountID], nil
}

func (s *integrationState) FindGuardhouseByAccountID(_ context.Context, accountID string) (*model.GuardhouseProfile, error) {
	return nil, nil
}

func (s *integrationState) sessionCount(accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, session := range s.sessions {
		if session.AccountID == accountID {
			n++
		}
	}
	return n
}

// --- 統合テスト用ルーター構築ヘルパー ---

type integrationEnv struct {
	state  *integrationState
	router http.Handler
	clock  *time.Time
}

func newIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()

	state := newIntegrationState()
	hasher := security.NewPasswordHasher(bcrypt.MinCost)
	now := time.Date(2026, 4, 1, 7, 30, 0, 0, time.UTC)
	env := &integrationEnv{state: state, clock: &now}

	accounts := account.NewService(state, state, state, hasher, nil)
	for _, in := range []account.CreateInput{
		{Email: "admin@school.example", Username: "admin", Password: "admin-pass-1", Role: model.RoleAdmin},
		{Email: "teacher@school.example", Username: "mdelacruz", Password: "teacher-pass-1", Role: model.RoleTeacher},
		{Email: "guard@school.example", Password: "guard-pass-1", Role: model.RoleGuardhouse},
	} {
		created, err := accounts.Create(context.Background(), in)
		if err != nil {
			t.Fatalf("failed to seed account %s: %v", in.Email, err)
		}
		switch created.Role {
		case model.RoleAdmin:
			state.admins[created.ID] = &model.AdminProfile{ID: "admin-profile", AccountID: created.ID, Position: "Principal"}
		case model.RoleTeacher:
			state.teachers[created.ID] = &model.TeacherProfile{ID: "teacher-profile", AccountID: created.ID, Assignments: []model.TeacherAssignment{}}
		}
	}

	authService := auth.NewService(auth.Dependencies{
		Accounts:  state,
		Sessions:  state,
		Audit:     state,
		Profiles:  profile.NewRegistry(state),
		Passwords: hasher,
		Tokens:    security.NewTokenGenerator(),
		Now:       func() time.Time { return *env.clock },
	}, auth.ServiceConfig{})

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	env.router = NewRouter(&RouterDeps{
		Authenticator:     authService,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		AuthService:       authService,
		AccountService:    accounts,
	})
	return env
}

func (e *integrationEnv) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var decoded map[string]any
	if err := json.NewDecoder(w.Body).Decode(&decoded); err != nil {
		t.Fatalf("%s %s: failed to decode body: %v", method, path, err)
	}
	return w.Code, decoded
}

func (e *integrationEnv) login(t *testing.T, identifier, password string) string {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/login", "", `{"email":"`+identifier+`","password":"`+password+`"}`)
	if code != http.StatusOK {
		t.Fatalf("login %s: status = %d, body = %v", identifier, code, body)
	}
	return body["data"].(map[string]any)["token"].(string)
}

// --- テスト ---

func TestIntegration_LoginMeCheckSessionLogout(t *testing.T) {
	env := newIntegrationEnv(t)

	// 1. ユーザー名でログイン
	token := env.login(t, "mdelacruz", "teacher-pass-1")

	// 2. /me
	code, body := env.do(t, http.MethodGet, "/me", token, "")
	if code != http.StatusOK {
		t.Fatalf("GET /me status = %d", code)
	}
	user := body["data"].(map[string]any)["user"].(map[string]any)
	if user["role"] != "teacher" {
		t.Errorf("role = %v, want teacher", user["role"])
	}

	// 3. /check-session: 新しいセッションは480分
	code, body = env.do(t, http.MethodGet, "/check-session", token, "")
	if code != http.StatusOK || body["valid"] != true {
		t.Fatalf("check-session status = %d, body = %v", code, body)
	}
	if remaining := body["data"].(map[string]any)["time_remaining"]; remaining != float64(480) {
		t.Errorf("time_remaining = %v, want 480", remaining)
	}

	// 4. ログアウトを2回: どちらも成功
	code, _ = env.do(t, http.MethodPost, "/logout", token, "")
	if code != http.StatusOK {
		t.Fatalf("logout status = %d", code)
	}

	// 5. ログアウト後はトークンが無効
	code, body = env.do(t, http.MethodGet, "/check-session", token, "")
	if code != http.StatusUnauthorized || body["valid"] != false {
		t.Errorf("check-session after logout: status = %d, body = %v", code, body)
	}
	code, _ = env.do(t, http.MethodPost, "/logout", token, "")
	if code != http.StatusUnauthorized {
		t.Errorf("second logout through middleware: status = %d, want 401", code)
	}
}

func TestIntegration_SecondLoginSupersedesFirst(t *testing.T) {
	env := newIntegrationEnv(t)

	first := env.login(t, "teacher@school.example", "teacher-pass-1")
	second := env.login(t, "teacher@school.example", "teacher-pass-1")

	if code, _ := env.do(t, http.MethodGet, "/me", first, ""); code != http.StatusUnauthorized {
		t.Errorf("first token: status = %d, want 401", code)
	}
	if code, _ := env.do(t, http.MethodGet, "/me", second, ""); code != http.StatusOK {
		t.Errorf("second token: status = %d, want 200", code)
	}

	teacher, _ := env.state.FindByIdentifier(context.Background(), "teacher@school.example")
	if n := env.state.sessionCount(teacher.ID); n != 1 {
		t.Errorf("session count = %d, want 1", n)
	}
}

func TestIntegration_SessionExpiry(t *testing.T) {
	env := newIntegrationEnv(t)
	token := env.login(t, "admin", "admin-pass-1")

	// expires_atちょうどはまだ有効
	*env.clock = env.clock.Add(8 * time.Hour)
	if code, body := env.do(t, http.MethodGet, "/check-session", token, ""); code != http.StatusOK {
		t.Fatalf("at expiry: status = %d, body = %v", code, body)
	}

	*env.clock = env.clock.Add(time.Second)
	code, body := env.do(t, http.MethodGet, "/me", token, "")
	if code != http.StatusUnauthorized {
		t.Fatalf("after expiry: status = %d, want 401", code)
	}
	if body["message"] != model.NewSessionExpiredError().Message {
		t.Errorf("message = %v", body["message"])
	}

	admin, _ := env.state.FindByIdentifier(context.Background(), "admin")
	if n := env.state.sessionCount(admin.ID); n != 0 {
		t.Errorf("expired session should be removed, count = %d", n)
	}
}

func TestIntegration_LoginFailures(t *testing.T) {
	env := newIntegrationEnv(t)

	// 誤ったパスワード
	code, body := env.do(t, http.MethodPost, "/login", "", `{"email":"teacher@school.example","password":"wrong"}`)
	if code != http.StatusUnprocessableEntity || body["message"] != model.MessageInvalidCredentials {
		t.Errorf("wrong password: status = %d, body = %v", code, body)
	}

	// 存在しないアカウント
	code, body = env.do(t, http.MethodPost, "/login", "", `{"email":"nobody@school.example","password":"whatever"}`)
	if code != http.StatusUnprocessableEntity || body["message"] != model.MessageInvalidCredentials {
		t.Errorf("unknown account: status = %d, body = %v", code, body)
	}

	// プロフィールが存在しない守衛所アカウント
	code, _ = env.do(t, http.MethodPost, "/login", "", `{"email":"guard@school.example","password":"guard-pass-1"}`)
	if code != http.StatusNotFound {
		t.Errorf("missing profile: status = %d, want 404", code)
	}
	guard, _ := env.state.FindByIdentifier(context.Background(), "guard@school.example")
	if n := env.state.sessionCount(guard.ID); n != 0 {
		t.Errorf("no session should be created without profile, count = %d", n)
	}
}

func TestIntegration_AdminDeactivatesTeacher(t *testing.T) {
	env := newIntegrationEnv(t)

	adminToken := env.login(t, "admin", "admin-pass-1")
	teacherToken := env.login(t, "mdelacruz", "teacher-pass-1")
	teacher, _ := env.state.FindByIdentifier(context.Background(), "mdelacruz")

	// 教師は他アカウントを操作できない
	code, _ := env.do(t, http.MethodPut, "/api/accounts/"+teacher.ID+"/status", teacherToken, `{"is_active":false}`)
	if code != http.StatusForbidden {
		t.Fatalf("teacher status update: status = %d, want 403", code)
	}

	// 管理者が教師を無効化するとセッションも失効する
	code, body := env.do(t, http.MethodPut, "/api/accounts/"+teacher.ID+"/status", adminToken, `{"is_active":false}`)
	if code != http.StatusOK {
		t.Fatalf("deactivate: status = %d, body = %v", code, body)
	}
	if code, _ := env.do(t, http.MethodGet, "/me", teacherToken, ""); code != http.StatusUnauthorized {
		t.Errorf("deactivated teacher token: status = %d, want 401", code)
	}

	// 正しいパスワードでも無効化アカウントは403
	code, _ = env.do(t, http.MethodPost, "/login", "", `{"email":"mdelacruz","password":"teacher-pass-1"}`)
	if code != http.StatusForbidden {
		t.Errorf("deactivated login: status = %d, want 403", code)
	}
	// 誤ったパスワードでは無効化を明かさない
	code, _ = env.do(t, http.MethodPost, "/login", "", `{"email":"mdelacruz","password":"nope"}`)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("deactivated wrong password: status = %d, want 422", code)
	}

	// UUIDでないIDは存在しないアカウントとして404
	code, body = env.do(t, http.MethodPut, "/api/accounts/not-a-uuid/status", adminToken, `{"is_active":false}`)
	if code != http.StatusNotFound {
		t.Errorf("malformed account id: status = %d, body = %v, want 404", code, body)
	}
}
