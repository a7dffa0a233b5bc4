package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/lamms/internal/model"
)

// MessageInternalError は500レスポンスの共通メッセージ。
const MessageInternalError = "An unexpected error occurred. Please try again later."

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
	Error   string              `json:"error,omitempty"` // 本番以外でのみ設定する内部エラー詳細
}

// WriteJSON は任意の値をJSONレスポンスとして書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	WriteJSON(w, statusCode, ErrorResponseBody{
		Success: false,
		Message: apiErr.Message,
		Errors:  apiErr.Fields,
	})
}

// WriteAPIError はAPIErrorのコードに対応するステータスでレスポンスを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForAPIError(apiErr), apiErr)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// detailは本番環境以外でのみ渡すこと。空の場合はレスポンスに含めない。
func WriteInternalServerError(w http.ResponseWriter, detail string) {
	WriteJSON(w, http.StatusInternalServerError, ErrorResponseBody{
		Success: false,
		Message: MessageInternalError,
		Error:   detail,
	})
}

// StatusForAPIError はAPIErrorコードからHTTPステータスコードにマッピングする。
func StatusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeInvalidCredentials:
		return http.StatusUnprocessableEntity
	case model.ErrCodeAccountDeactivated, model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeUnauthenticated, model.ErrCodeSessionExpired:
		return http.StatusUnauthorized
	case model.ErrCodeProfileNotFound, model.ErrCodeAccountNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
