package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/habits/internal/model"
	"github.com/hitoshi/habits/internal/streak"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Rename(ctx context.Context, userID, name string) (*model.User, error)
	SetToken(ctx context.Context, userID, service, token string) error
	ClearToken(ctx context.Context, userID, service string) error
	ListTokens(ctx context.Context, userID string) ([]*model.ServiceToken, error)
	ListDaysOff(ctx context.Context, userID string) ([]streak.Date, error)
	AddDayOff(ctx context.Context, userID, date string) (streak.Date, error)
	RemoveDayOff(ctx context.Context, userID, date string) error
	// Withdraw はユーザーの退会処理を実行する。
	// 目標・記録・応援・フォロー・休養日・トークンは一括削除され、証拠画像も消える。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

type renameRequest struct {
	Name string `json:"name"`
}

type setTokenRequest struct {
	Token string `json:"token"`
}

// tokenResponse は外部サービス連携状態。トークン自体は返さない。
type tokenResponse struct {
	Service        string     `json:"service"`
	Connected      bool       `json:"connected"`
	LastImportedAt *time.Time `json:"last_imported_at,omitempty"`
}

type dayOffResponse struct {
	Date streak.Date `json:"date"`
}

// Rename は表示名を変更する。
// PATCH /api/users/me
func (h *UserHandler) Rename(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req renameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Rename(r.Context(), userID, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ListTokens は連携中の外部サービスを返す。
// GET /api/users/me/tokens
func (h *UserHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	tokens, err := h.service.ListTokens(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]tokenResponse, 0, len(tokens))
	for _, t := range tokens {
		resp = append(resp, tokenResponse{
			Service:        t.Service,
			Connected:      t.Token != "",
			LastImportedAt: t.LastImportedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetToken は外部サービスのアクセストークンを登録する。
// PUT /api/users/me/tokens/{service}
func (h *UserHandler) SetToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req setTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.SetToken(r.Context(), userID, chi.URLParam(r, "service"), req.Token); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearToken は外部サービスの連携を解除する。
// DELETE /api/users/me/tokens/{service}
func (h *UserHandler) ClearToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.ClearToken(r.Context(), userID, chi.URLParam(r, "service")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListDaysOff は休養日を日付順に返す。
// GET /api/days-off
func (h *UserHandler) ListDaysOff(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	dates, err := h.service.ListDaysOff(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]dayOffResponse, 0, len(dates))
	for _, d := range dates {
		resp = append(resp, dayOffResponse{Date: d})
	}
	writeJSON(w, http.StatusOK, resp)
}

// AddDayOff は休養日を登録する。
// PUT /api/days-off/{date}
func (h *UserHandler) AddDayOff(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	d, err := h.service.AddDayOff(r.Context(), userID, chi.URLParam(r, "date"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dayOffResponse{Date: d})
}

// RemoveDayOff は休養日を削除する。
// DELETE /api/days-off/{date}
func (h *UserHandler) RemoveDayOff(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveDayOff(r.Context(), userID, chi.URLParam(r, "date")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
