package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/lamms/internal/middleware"
	"github.com/hitoshi/lamms/internal/model"
)

// AccountServiceInterface はアカウント管理ハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	// SetActive はアカウントの有効フラグを更新する。無効化時はセッションも削除される。
	SetActive(ctx context.Context, actorID, accountID string, active bool) (*model.Account, error)
}

// AccountHandler はアカウント管理のHTTPハンドラー。
type AccountHandler struct {
	service      AccountServiceInterface
	exposeErrors bool
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface, exposeErrors bool) *AccountHandler {
	return &AccountHandler{
		service:      service,
		exposeErrors: exposeErrors,
	}
}

// updateStatusRequest はアカウント状態更新リクエストのボディ。
type updateStatusRequest struct {
	IsActive *bool `json:"is_active"`
}

type accountStatusData struct {
	ID       string `json:"id"`
	IsActive bool   `json:"is_active"`
}

type accountStatusResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    accountStatusData `json:"data"`
}

// UpdateStatus はアカウントの有効・無効を切り替える。
// PUT /api/accounts/{id}/status（管理者のみ）
func (h *AccountHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		middleware.WriteAPIError(w, model.NewUnauthenticatedError())
		return
	}

	var req updateStatusRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		handleServiceError(w, r, err, h.exposeErrors)
		return
	}
	if req.IsActive == nil {
		middleware.WriteAPIError(w, model.NewValidationError(map[string][]string{
			"is_active": {"The is_active field is required."},
		}))
		return
	}

	accountID := chi.URLParam(r, "id")
	account, err := h.service.SetActive(r.Context(), actorID, accountID, *req.IsActive)
	if err != nil {
		handleServiceError(w, r, err, h.exposeErrors)
		return
	}

	message := "Account activated"
	if !account.IsActive {
		message = "Account deactivated"
	}
	middleware.WriteJSON(w, http.StatusOK, accountStatusResponse{
		Success: true,
		Message: message,
		Data: accountStatusData{
			ID:       account.ID,
			IsActive: account.IsActive,
		},
	})
}
