package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/lamms/internal/auth"
	"github.com/hitoshi/lamms/internal/middleware"
	"github.com/hitoshi/lamms/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	loginFn        func(ctx context.Context, in auth.LoginInput) (*auth.LoginResult, error)
	logoutFn       func(ctx context.Context, token string) error
	checkSessionFn func(ctx context.Context, token string) (*auth.SessionStatus, error)
	loadProfileFn  func(ctx context.Context, account *model.Account) (model.Profile, error)
}

func (m *mockAuthService) Login(ctx context.Context, in auth.LoginInput) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, in)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, token)
	}
	return nil
}

func (m *mockAuthService) CheckSession(ctx context.Context, token string) (*auth.SessionStatus, error) {
	if m.checkSessionFn != nil {
		return m.checkSessionFn(ctx, token)
	}
	return nil, model.NewUnauthenticatedError()
}

func (m *mockAuthService) LoadProfile(ctx context.Context, account *model.Account) (model.Profile, error) {
	if m.loadProfileFn != nil {
		return m.loadProfileFn(ctx, account)
	}
	return &model.TeacherProfile{ID: "profile-1", AccountID: account.ID}, nil
}

// --- ヘルパー ---

var testNow = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func testAccount(role model.Role) *model.Account {
	return &model.Account{
		ID:           "account-1",
		Email:        "teacher@example.com",
		Username:     "teacher1",
		PasswordHash: "$2a$12$secret",
		Role:         role,
		IsActive:     true,
	}
}

func testSession() *model.Session {
	return &model.Session{
		ID:           "session-1",
		AccountID:    "account-1",
		Role:         model.RoleTeacher,
		CreatedAt:    testNow,
		LastActivity: testNow,
		ExpiresAt:    testNow.Add(8 * time.Hour),
	}
}

func withPrincipal(req *http.Request, account *model.Account) *http.Request {
	return req.WithContext(middleware.ContextWithPrincipal(req.Context(), &auth.Principal{
		Account: account,
		Session: testSession(),
	}))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

// --- Login ---

func TestAuthHandler_Login_Success(t *testing.T) {
	var gotInput auth.LoginInput
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, in auth.LoginInput) (*auth.LoginResult, error) {
			gotInput = in
			return &auth.LoginResult{
				Token:   "plain-token",
				Account: testAccount(model.RoleTeacher),
				Profile: &model.TeacherProfile{ID: "profile-1", AccountID: "account-1", Assignments: []model.TeacherAssignment{}},
				Session: testSession(),
			}, nil
		},
	}
	h := NewAuthHandler(svc, false)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"teacher1","password":"secret-pass"}`))
	req.Header.Set("User-Agent", "test-agent/1.0")
	req.RemoteAddr = "192.0.2.10:5555"
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if gotInput.Identifier != "teacher1" || gotInput.Password != "secret-pass" {
		t.Errorf("unexpected input: %+v", gotInput)
	}
	if gotInput.IPAddress != "192.0.2.10" {
		t.Errorf("IPAddress = %q, want %q", gotInput.IPAddress, "192.0.2.10")
	}
	if gotInput.UserAgent != "test-agent/1.0" {
		t.Errorf("UserAgent = %q", gotInput.UserAgent)
	}

	if strings.Contains(w.Body.String(), "$2a$") {
		t.Error("response must not contain password hash")
	}

	body := decodeBody(t, w)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if body["message"] != "Login successful" {
		t.Errorf("message = %v", body["message"])
	}
	data := body["data"].(map[string]any)
	if data["token"] != "plain-token" {
		t.Errorf("token = %v", data["token"])
	}
	user := data["user"].(map[string]any)
	if user["id"] != "account-1" || user["role"] != "teacher" || user["username"] != "teacher1" {
		t.Errorf("unexpected user: %v", user)
	}
	session := data["session"].(map[string]any)
	if session["id"] != "session-1" {
		t.Errorf("session.id = %v", session["id"])
	}
	if session["expires_at"] != testNow.Add(8*time.Hour).Format(time.RFC3339) {
		t.Errorf("session.expires_at = %v", session["expires_at"])
	}
	if _, ok := data["profile"].(map[string]any); !ok {
		t.Errorf("profile should be an object, got %v", data["profile"])
	}
}

func TestAuthHandler_Login_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantErrors bool
	}{
		{"不正な認証情報", model.NewInvalidCredentialsError(), http.StatusUnprocessableEntity, true},
		{"入力検証", model.NewValidationError(map[string][]string{"password": {"required"}}), http.StatusUnprocessableEntity, true},
		{"無効化アカウント", model.NewAccountDeactivatedError(), http.StatusForbidden, false},
		{"プロフィールなし", model.NewProfileNotFoundError(model.RoleGuardhouse), http.StatusNotFound, false},
		{"内部エラー", errors.New("connection refused"), http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				loginFn: func(ctx context.Context, in auth.LoginInput) (*auth.LoginResult, error) {
					return nil, tt.err
				},
			}
			h := NewAuthHandler(svc, false)

			req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"a@example.com","password":"x"}`))
			w := httptest.NewRecorder()
			h.Login(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := decodeBody(t, w)
			if body["success"] != false {
				t.Errorf("success = %v, want false", body["success"])
			}
			if _, ok := body["errors"]; ok != tt.wantErrors {
				t.Errorf("errors present = %v, want %v", ok, tt.wantErrors)
			}
			if _, ok := body["error"]; ok {
				t.Error("internal error detail must be hidden in production")
			}
		})
	}
}

func TestAuthHandler_Login_ExposesDetailOutsideProduction(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, in auth.LoginInput) (*auth.LoginResult, error) {
			return nil, errors.New("connection refused")
		},
	}
	h := NewAuthHandler(svc, true)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"a","password":"b"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	body := decodeBody(t, w)
	if body["error"] != "connection refused" {
		t.Errorf("error = %v, want detail", body["error"])
	}
}

func TestAuthHandler_Login_MalformedJSON_Returns422(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, in auth.LoginInput) (*auth.LoginResult, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	h := NewAuthHandler(svc, false)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}

// --- Logout ---

func TestAuthHandler_Logout_PassesBearerToken(t *testing.T) {
	var gotToken string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, token string) error {
			gotToken = token
			return nil
		},
	}
	h := NewAuthHandler(svc, false)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("Authorization", "Bearer plain-token")
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotToken != "plain-token" {
		t.Errorf("token = %q, want %q", gotToken, "plain-token")
	}
	body := decodeBody(t, w)
	if body["success"] != true || body["message"] != "Logged out successfully" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestAuthHandler_Logout_ServiceError_Returns500(t *testing.T) {
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, token string) error {
			return errors.New("db down")
		},
	}
	h := NewAuthHandler(svc, false)

	w := httptest.NewRecorder()
	h.Logout(w, httptest.NewRequest(http.MethodPost, "/logout", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// --- Me ---

func TestAuthHandler_Me_ReturnsUserProfileAndSession(t *testing.T) {
	svc := &mockAuthService{
		loadProfileFn: func(ctx context.Context, account *model.Account) (model.Profile, error) {
			return &model.TeacherProfile{
				ID:        "profile-1",
				AccountID: account.ID,
				FirstName: "Maria",
				Assignments: []model.TeacherAssignment{
					{SectionID: "sec-1", SectionName: "Rizal", GradeLevel: "7", IsPrimary: true},
				},
			}, nil
		},
	}
	h := NewAuthHandler(svc, false)

	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/me", nil), testAccount(model.RoleTeacher))
	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	data := body["data"].(map[string]any)

	user := data["user"].(map[string]any)
	if user["email"] != "teacher@example.com" {
		t.Errorf("user.email = %v", user["email"])
	}
	profile := data["profile"].(map[string]any)
	if profile["first_name"] != "Maria" {
		t.Errorf("profile.first_name = %v", profile["first_name"])
	}
	if assignments := profile["assignments"].([]any); len(assignments) != 1 {
		t.Errorf("assignments = %v, want 1 entry", assignments)
	}
	session := data["session"].(map[string]any)
	if session["is_active"] != true {
		t.Errorf("session.is_active = %v", session["is_active"])
	}
	if session["last_activity"] != testNow.Format(time.RFC3339) {
		t.Errorf("session.last_activity = %v", session["last_activity"])
	}
}

func TestAuthHandler_Me_NoPrincipal_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, false)

	w := httptest.NewRecorder()
	h.Me(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthHandler_Me_ProfileMissing_Returns404(t *testing.T) {
	svc := &mockAuthService{
		loadProfileFn: func(ctx context.Context, account *model.Account) (model.Profile, error) {
			return nil, model.NewProfileNotFoundError(account.Role)
		},
	}
	h := NewAuthHandler(svc, false)

	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/me", nil), testAccount(model.RoleAdmin))
	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// --- CheckSession ---

func TestAuthHandler_CheckSession_Valid(t *testing.T) {
	svc := &mockAuthService{
		checkSessionFn: func(ctx context.Context, token string) (*auth.SessionStatus, error) {
			if token != "plain-token" {
				t.Errorf("token = %q", token)
			}
			return &auth.SessionStatus{
				Principal:     auth.Principal{Account: testAccount(model.RoleTeacher), Session: testSession()},
				ExpiresAt:     testNow.Add(8 * time.Hour),
				TimeRemaining: 480,
			}, nil
		},
	}
	h := NewAuthHandler(svc, false)

	req := httptest.NewRequest(http.MethodGet, "/check-session", nil)
	req.Header.Set("Authorization", "Bearer plain-token")
	w := httptest.NewRecorder()
	h.CheckSession(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["success"] != true || body["valid"] != true {
		t.Errorf("unexpected body: %v", body)
	}
	data := body["data"].(map[string]any)
	if data["time_remaining"] != float64(480) {
		t.Errorf("time_remaining = %v, want 480", data["time_remaining"])
	}
}

func TestAuthHandler_CheckSession_Invalid_Returns401WithValidFalse(t *testing.T) {
	for _, apiErr := range []*model.APIError{model.NewUnauthenticatedError(), model.NewSessionExpiredError()} {
		t.Run(apiErr.Code, func(t *testing.T) {
			svc := &mockAuthService{
				checkSessionFn: func(ctx context.Context, token string) (*auth.SessionStatus, error) {
					return nil, apiErr
				},
			}
			h := NewAuthHandler(svc, false)

			w := httptest.NewRecorder()
			h.CheckSession(w, httptest.NewRequest(http.MethodGet, "/check-session", nil))

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			body := decodeBody(t, w)
			if body["success"] != false || body["valid"] != false {
				t.Errorf("unexpected body: %v", body)
			}
			if body["message"] != apiErr.Message {
				t.Errorf("message = %v, want %q", body["message"], apiErr.Message)
			}
			if _, ok := body["data"]; ok {
				t.Error("data should be omitted for invalid session")
			}
		})
	}
}

func TestAuthHandler_CheckSession_InternalError_Returns500(t *testing.T) {
	svc := &mockAuthService{
		checkSessionFn: func(ctx context.Context, token string) (*auth.SessionStatus, error) {
			return nil, errors.New("db down")
		},
	}
	h := NewAuthHandler(svc, false)

	w := httptest.NewRecorder()
	h.CheckSession(w, httptest.NewRequest(http.MethodGet, "/check-session", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
