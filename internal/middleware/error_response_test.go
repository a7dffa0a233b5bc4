package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/lamms/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusUnprocessableEntity, model.NewInvalidCredentialsError())

	resp := w.Result()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Success {
		t.Error("success should be false")
	}
	if body.Message != model.MessageInvalidCredentials {
		t.Errorf("message = %q, want %q", body.Message, model.MessageInvalidCredentials)
	}
	if got := body.Errors["email"]; len(got) != 1 {
		t.Errorf("errors.email = %v, want one message", got)
	}
}

// TestWriteErrorResponse_OmitsEmptyErrors はフィールドエラーがない場合にerrorsキーを含めないことを検証する。
func TestWriteErrorResponse_OmitsEmptyErrors(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusForbidden, model.NewAccountDeactivatedError())

	body := w.Body.String()
	if strings.Contains(body, `"errors"`) {
		t.Errorf("body should not contain errors key: %s", body)
	}
	if strings.Contains(body, `"error"`) {
		t.Errorf("body should not contain error key: %s", body)
	}
}

// TestWriteInternalServerError は500レスポンスの詳細の有無を検証する。
func TestWriteInternalServerError(t *testing.T) {
	t.Run("詳細なし", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteInternalServerError(w, "")

		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
		var body ErrorResponseBody
		json.NewDecoder(w.Body).Decode(&body)
		if body.Message != MessageInternalError {
			t.Errorf("message = %q", body.Message)
		}
		if body.Error != "" {
			t.Errorf("error detail should be empty, got %q", body.Error)
		}
	})

	t.Run("詳細あり", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteInternalServerError(w, "pq: connection refused")

		var body ErrorResponseBody
		json.NewDecoder(w.Body).Decode(&body)
		if body.Error != "pq: connection refused" {
			t.Errorf("error = %q", body.Error)
		}
	})
}

// TestStatusForAPIError はエラーコードとHTTPステータスの対応を検証する。
func TestStatusForAPIError(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewValidationError(map[string][]string{"email": {"x"}}), http.StatusUnprocessableEntity},
		{model.NewInvalidCredentialsError(), http.StatusUnprocessableEntity},
		{model.NewAccountDeactivatedError(), http.StatusForbidden},
		{model.NewForbiddenError(), http.StatusForbidden},
		{model.NewUnauthenticatedError(), http.StatusUnauthorized},
		{model.NewSessionExpiredError(), http.StatusUnauthorized},
		{model.NewProfileNotFoundError(model.RoleTeacher), http.StatusNotFound},
		{model.NewAccountNotFoundError("x"), http.StatusNotFound},
		{&model.APIError{Code: model.ErrCodeRateLimited}, http.StatusTooManyRequests},
		{&model.APIError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := StatusForAPIError(tt.err); got != tt.want {
				t.Errorf("StatusForAPIError(%s) = %d, want %d", tt.err.Code, got, tt.want)
			}
		})
	}
}
