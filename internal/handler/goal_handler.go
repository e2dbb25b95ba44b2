package handler

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/habits/internal/catalog"
	"github.com/hitoshi/habits/internal/model"
	"github.com/hitoshi/habits/internal/streak"
)

// CatalogReader は活動カタログの読み出し。
type CatalogReader interface {
	All() []catalog.Activity
}

// GoalServiceInterface は目標ハンドラーが必要とするサービスインターフェース。
type GoalServiceInterface interface {
	List(ctx context.Context, userID string) ([]model.Goal, error)
	SetTarget(ctx context.Context, userID, activity string, target float64, unit string) (*model.Goal, error)
}

// GoalHandler は活動カタログと目標のHTTPハンドラー。
type GoalHandler struct {
	catalog CatalogReader
	service GoalServiceInterface
}

// NewGoalHandler はGoalHandlerを生成する。
func NewGoalHandler(catalog CatalogReader, service GoalServiceInterface) *GoalHandler {
	return &GoalHandler{
		catalog: catalog,
		service: service,
	}
}

type goalResponse struct {
	Activity  string        `json:"activity"`
	Target    float64       `json:"target"`
	Period    streak.Period `json:"period"`
	Unit      string        `json:"unit"`
	UpdatedAt *time.Time    `json:"updated_at,omitempty"`
}

func toGoalResponse(g model.Goal) goalResponse {
	resp := goalResponse{
		Activity: g.Activity,
		Target:   g.Target,
		Period:   g.Period,
		Unit:     g.Unit,
	}
	if !g.UpdatedAt.IsZero() {
		t := g.UpdatedAt
		resp.UpdatedAt = &t
	}
	return resp
}

type setTargetRequest struct {
	Target *float64 `json:"target"`
	Unit   string   `json:"unit"`
}

// ListActivities は活動カタログを返す。
// GET /api/activities
func (h *GoalHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	activities := h.catalog.All()
	if activities == nil {
		activities = []catalog.Activity{}
	}
	writeJSON(w, http.StatusOK, activities)
}

// ListGoals はログインユーザーの目標一覧を返す。
// GET /api/goals
func (h *GoalHandler) ListGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	goals, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]goalResponse, 0, len(goals))
	for _, g := range goals {
		resp = append(resp, toGoalResponse(g))
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetTarget は活動の目標値を設定する。0を指定すると目標を解除する。
// PUT /api/goals/{activity}
func (h *GoalHandler) SetTarget(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	activity, err := url.PathUnescape(chi.URLParam(r, "activity"))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidActivityError())
		return
	}

	var req setTargetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Target == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	goal, err := h.service.SetTarget(r.Context(), userID, activity, *req.Target, req.Unit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGoalResponse(*goal))
}
