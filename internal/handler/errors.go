package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/lamms/internal/middleware"
	"github.com/hitoshi/lamms/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限サイズ。
const maxRequestBodyBytes = 64 << 10

// handleServiceError はサービス層から返されたエラーを適切なHTTPレスポンスに変換する。
// exposeErrorsがtrueの場合のみ内部エラーの詳細をレスポンスに含める。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error, exposeErrors bool) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	detail := ""
	if exposeErrors {
		detail = err.Error()
	}
	middleware.WriteInternalServerError(w, detail)
}

// decodeJSONBody はリクエストボディをJSONとしてデコードする。
// 不正なJSONの場合はVALIDATION_ERRORを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.NewValidationError(map[string][]string{
			"body": {"The request body must be valid JSON."},
		})
	}
	return nil
}
