// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/lamms/internal/auth"
	"github.com/hitoshi/lamms/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに認証済み主体を格納するためのキー。
var principalContextKey = contextKey("principal")

// TokenAuthenticator はBearerトークンの検証に必要なインターフェース。
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// ヘッダーがない場合や形式が異なる場合は空文字列を返す。
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// NewBearerAuthMiddleware はBearerトークンを検証し、
// 認証済みの主体をリクエストコンテキストに注入するミドルウェアを返す。
// 未認証・期限切れのリクエストには401を返す。
func NewBearerAuthMiddleware(authenticator TokenAuthenticator, exposeErrors bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := authenticator.Authenticate(r.Context(), BearerToken(r))
			if err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) {
					WriteAPIError(w, apiErr)
					return
				}
				slog.Error("failed to authenticate request",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w, errorDetail(err, exposeErrors))
				return
			}

			annotateAccountID(r.Context(), principal.Account.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// NewRequireRoleMiddleware は指定ロールのいずれかを持つ主体のみを通過させる。
// BearerAuthMiddlewareの後に配置すること。
func NewRequireRoleMiddleware(roles ...model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				WriteAPIError(w, model.NewUnauthenticatedError())
				return
			}
			for _, role := range roles {
				if principal.Account.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			slog.Warn("forbidden",
				slog.String("account_id", principal.Account.ID),
				slog.String("role", string(principal.Account.Role)),
				slog.String("path", r.URL.Path),
			)
			WriteAPIError(w, model.NewForbiddenError())
		})
	}
}

// PrincipalFromContext はリクエストコンテキストから認証済み主体を取得する。
// BearerAuthMiddlewareを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*auth.Principal)
	if !ok || p == nil || p.Account == nil || p.Session == nil {
		return nil, false
	}
	return p, true
}

// AccountIDFromContext はリクエストコンテキストから認証済みアカウントIDを取得する。
func AccountIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return "", false
	}
	return p.Account.ID, true
}

// ContextWithPrincipal はコンテキストに認証済み主体を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// errorDetail はexposeがtrueの場合のみエラー詳細を返す。
func errorDetail(err error, expose bool) string {
	if !expose || err == nil {
		return ""
	}
	return err.Error()
}
