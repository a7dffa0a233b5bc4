// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/lamms/internal/auth"
	"github.com/hitoshi/lamms/internal/middleware"
	"github.com/hitoshi/lamms/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, in auth.LoginInput) (*auth.LoginResult, error)
	Logout(ctx context.Context, token string) error
	CheckSession(ctx context.Context, token string) (*auth.SessionStatus, error)
	LoadProfile(ctx context.Context, account *model.Account) (model.Profile, error)
}

// AuthHandler はセッション認証関連のHTTPハンドラー。
type AuthHandler struct {
	service      AuthServiceInterface
	exposeErrors bool
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, exposeErrors bool) *AuthHandler {
	return &AuthHandler{
		service:      service,
		exposeErrors: exposeErrors,
	}
}

// loginRequest はログインリクエストのボディ。
// emailにはメールアドレスまたはユーザー名を指定できる。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse はアカウント情報のAPIレスポンス。
type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
}

// loginSessionResponse はログイン時に返すセッション情報。
type loginSessionResponse struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type loginData struct {
	Token   string               `json:"token"`
	User    userResponse         `json:"user"`
	Profile model.Profile        `json:"profile"`
	Session loginSessionResponse `json:"session"`
}

type loginResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Data    loginData `json:"data"`
}

// meSessionResponse は/meで返すセッション情報。
type meSessionResponse struct {
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	IsActive     bool      `json:"is_active"`
}

type meData struct {
	User    userResponse      `json:"user"`
	Profile model.Profile     `json:"profile"`
	Session meSessionResponse `json:"session"`
}

type meResponse struct {
	Success bool   `json:"success"`
	Data    meData `json:"data"`
}

type checkSessionData struct {
	ExpiresAt     time.Time `json:"expires_at"`
	TimeRemaining int       `json:"time_remaining"`
}

type checkSessionResponse struct {
	Success bool              `json:"success"`
	Valid   bool              `json:"valid"`
	Data    *checkSessionData `json:"data,omitempty"`
	Message string            `json:"message,omitempty"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Login は認証情報を検証してセッションを発行する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		handleServiceError(w, r, err, h.exposeErrors)
		return
	}

	result, err := h.service.Login(r.Context(), auth.LoginInput{
		Identifier: req.Email,
		Password:   req.Password,
		IPAddress:  middleware.ClientIP(r),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		handleServiceError(w, r, err, h.exposeErrors)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, loginResponse{
		Success: true,
		Message: "Login successful",
		Data: loginData{
			Token:   result.Token,
			User:    toUserResponse(result.Account),
			Profile: result.Profile,
			Session: loginSessionResponse{
				ID:        result.Session.ID,
				ExpiresAt: result.Session.ExpiresAt,
			},
		},
	})
}

// Logout は現在のセッションを破棄する。
// POST /logout（BearerAuthMiddlewareの内側に配置）
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), middleware.BearerToken(r)); err != nil {
		handleServiceError(w, r, err, h.exposeErrors)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: "Logged out successfully",
	})
}

// Me は現在のアカウント・プロフィール・セッション情報を返す。
// GET /me（BearerAuthMiddlewareの内側に配置）
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteAPIError(w, model.NewUnauthenticatedError())
		return
	}

	profile, err := h.service.LoadProfile(r.Context(), principal.Account)
	if err != nil {
		handleServiceError(w, r, err, h.exposeErrors)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, meResponse{
		Success: true,
		Data: meData{
			User:    toUserResponse(principal.Account),
			Profile: profile,
			Session: meSessionResponse{
				LastActivity: principal.Session.LastActivity,
				ExpiresAt:    principal.Session.ExpiresAt,
				IsActive:     true,
			},
		},
	})
}

// CheckSession はセッションの有効性と残り時間（分）を返す。
// GET /check-session
// 無効な場合もvalid:falseを含む401を返すため、BearerAuthMiddlewareは通さない。
func (h *AuthHandler) CheckSession(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.CheckSession(r.Context(), middleware.BearerToken(r))
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && middleware.StatusForAPIError(apiErr) == http.StatusUnauthorized {
			middleware.WriteJSON(w, http.StatusUnauthorized, checkSessionResponse{
				Success: false,
				Valid:   false,
				Message: apiErr.Message,
			})
			return
		}
		handleServiceError(w, r, err, h.exposeErrors)
		return
	}

	slog.Debug("session checked",
		slog.String("account_id", status.Account.ID),
		slog.Int("time_remaining", status.TimeRemaining),
	)

	middleware.WriteJSON(w, http.StatusOK, checkSessionResponse{
		Success: true,
		Valid:   true,
		Data: &checkSessionData{
			ExpiresAt:     status.ExpiresAt,
			TimeRemaining: status.TimeRemaining,
		},
	})
}

// toUserResponse はアカウントをAPIレスポンス形式に変換する。
// パスワードハッシュは含めない。
func toUserResponse(a *model.Account) userResponse {
	return userResponse{
		ID:       a.ID,
		Email:    a.Email,
		Username: a.Username,
		Role:     string(a.Role),
	}
}
