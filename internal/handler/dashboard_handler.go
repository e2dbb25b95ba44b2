package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/habits/internal/dashboard"
	"github.com/hitoshi/habits/internal/model"
)

// DashboardServiceInterface はダッシュボードハンドラーが必要とするサービスインターフェース。
type DashboardServiceInterface interface {
	Get(ctx context.Context, userID string) (*dashboard.Dashboard, error)
	Leaderboard(ctx context.Context) ([]model.LeaderboardEntry, error)
}

// DashboardHandler はダッシュボードとリーダーボードのHTTPハンドラー。
type DashboardHandler struct {
	service DashboardServiceInterface
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(service DashboardServiceInterface) *DashboardHandler {
	return &DashboardHandler{service: service}
}

type leaderboardEntryResponse struct {
	Rank       int    `json:"rank"`
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	MainStreak int    `json:"main_streak"`
}

// Get はログインユーザーのダッシュボードを返す。
// GET /api/dashboard
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	d, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// Leaderboard はメインストリークの上位ユーザーを返す。
// GET /api/leaderboard
func (h *DashboardHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Leaderboard(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]leaderboardEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, leaderboardEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}
