package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/lamms/internal/metrics"
	"github.com/hitoshi/lamms/internal/middleware"
	"github.com/hitoshi/lamms/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.TokenAuthenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	ExposeErrors      bool // 500レスポンスにエラー詳細を含めるか（本番以外）

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface

	// アカウント管理
	AccountService AccountServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → Metrics → SecurityHeaders → CORS
//
// 認証が必要なルートには BearerAuth → RateLimit(General) を追加し、
// 管理者ルートにはさらに RequireRole(admin) を適用する。
// X-Forwarded-For等のヘッダーは信頼せず、クライアントIPは接続元アドレスから取る。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(deps.ExposeErrors))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.ExposeErrors)
	accountHandler := NewAccountHandler(deps.AccountService, deps.ExposeErrors)
	bearerAuth := middleware.NewBearerAuthMiddleware(deps.Authenticator, deps.ExposeErrors)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)

	// check-sessionは無効時にvalid:falseを返すため独自に判定する
	r.Get("/check-session", authHandler.CheckSession)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: BearerAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(bearerAuth)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)

		// アカウント管理（管理者のみ）
		r.Route("/api/accounts", func(r chi.Router) {
			r.Use(middleware.NewRequireRoleMiddleware(model.RoleAdmin))
			r.Put("/{id}/status", accountHandler.UpdateStatus)
		})
	})

	return r
}
