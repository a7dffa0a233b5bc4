package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 統一フォーマットの500レスポンスを返すミドルウェアを生成する。
// exposeErrorsがtrueの場合はpanicの内容をerrorフィールドに含める。
func NewRecoveryMiddleware(exposeErrors bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					slog.Error("panic recovered",
						slog.Any("panic", rec),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("stack", string(debug.Stack())),
					)
					detail := ""
					if exposeErrors {
						detail = fmt.Sprint(rec)
					}
					WriteInternalServerError(w, detail)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
