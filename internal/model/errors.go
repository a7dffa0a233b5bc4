// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// ハンドラー層でCodeからHTTPステータスへ変換される。
type APIError struct {
	Code     string              // エラーコード
	Message  string              // クライアントに返すメッセージ
	Category string              // カテゴリ: auth, validation, account, system
	Fields   map[string][]string // フィールド単位のエラー（422レスポンスのerrors）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeAccountDeactivated = "ACCOUNT_DEACTIVATED"
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeSessionExpired     = "SESSION_EXPIRED"
	ErrCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// MessageInvalidCredentials はログイン失敗時の共通メッセージ。
// アカウントの存在有無を推測させないため、原因を区別しない。
const MessageInvalidCredentials = "The provided credentials are incorrect."

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(fields map[string][]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "Validation failed",
		Category: "validation",
		Fields:   fields,
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  MessageInvalidCredentials,
		Category: "auth",
		Fields: map[string][]string{
			"email": {MessageInvalidCredentials},
		},
	}
}

// NewAccountDeactivatedError は無効化済みアカウントのエラーを生成する。
func NewAccountDeactivatedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountDeactivated,
		Message:  "Your account has been deactivated. Please contact the administrator.",
		Category: "auth",
	}
}

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "Unauthenticated.",
		Category: "auth",
	}
}

// NewSessionExpiredError はセッション期限切れエラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "Session expired. Please login again.",
		Category: "auth",
	}
}

// NewProfileNotFoundError はロールに対応するプロフィールが存在しない場合のエラーを生成する。
func NewProfileNotFoundError(role Role) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("%s profile not found", role),
		Category: "account",
	}
}

// NewForbiddenError はロール不足のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You are not allowed to perform this action.",
		Category: "auth",
	}
}

// NewAccountNotFoundError はアカウントが見つからない場合のエラーを生成する。
func NewAccountNotFoundError(accountID string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  fmt.Sprintf("Account not found: %s", accountID),
		Category: "account",
	}
}
