package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/habits/internal/model"
)

// SocialServiceInterface はソーシャルハンドラーが必要とするサービスインターフェース。
type SocialServiceInterface interface {
	ListUsers(ctx context.Context, viewerID string) ([]model.UserWithFollowState, error)
	Follow(ctx context.Context, followerID, followedID string) error
	Unfollow(ctx context.Context, followerID, followedID string) error
	Feed(ctx context.Context, viewerID string) ([]model.FeedEntry, error)
}

// SocialHandler はフォローとフィードのHTTPハンドラー。
type SocialHandler struct {
	service SocialServiceInterface
	proofs  ProofURLResolver
}

// NewSocialHandler はSocialHandlerを生成する。
func NewSocialHandler(service SocialServiceInterface, proofs ProofURLResolver) *SocialHandler {
	return &SocialHandler{
		service: service,
		proofs:  proofs,
	}
}

type socialUserResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Following bool      `json:"following"`
	CreatedAt time.Time `json:"created_at"`
}

type feedEntryResponse struct {
	logResponse
	UserName    string `json:"user_name"`
	CheeredByMe bool   `json:"cheered_by_me"`
}

// ListUsers は自分以外のユーザーとフォロー状態を返す。
// GET /api/users
func (h *SocialHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	users, err := h.service.ListUsers(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]socialUserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, socialUserResponse{
			ID:        u.ID,
			Name:      u.Name,
			Following: u.Following,
			CreatedAt: u.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Follow はユーザーをフォローする。既にフォロー済みでも成功する。
// PUT /api/users/{id}/follow
func (h *SocialHandler) Follow(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Follow(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unfollow はフォローを解除する。
// DELETE /api/users/{id}/follow
func (h *SocialHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Unfollow(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Feed はフォロー中のユーザーの最近の記録を新しい順に返す。
// GET /api/feed
func (h *SocialHandler) Feed(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.Feed(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]feedEntryResponse, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		resp = append(resp, feedEntryResponse{
			logResponse: toLogResponse(r.Context(), &e.Log, h.proofs),
			UserName:    e.UserName,
			CheeredByMe: e.CheeredByMe,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
