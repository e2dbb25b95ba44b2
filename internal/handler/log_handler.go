package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/habits/internal/activity"
	"github.com/hitoshi/habits/internal/model"
	"github.com/hitoshi/habits/internal/streak"
)

// multipartOverhead は証拠画像以外のマルチパートフィールドに許容するバイト数。
const multipartOverhead = 1 << 20

// LogServiceInterface は記録ハンドラーが必要とするサービスインターフェース。
type LogServiceInterface interface {
	CreateLog(ctx context.Context, userID string, in activity.CreateLogInput) (*model.Log, error)
	History(ctx context.Context, userID, date string) (*activity.DayHistory, error)
	Cheer(ctx context.Context, userID, logID string) (int, error)
	ProofURL(ctx context.Context, key string) string
}

// ProofURLResolver は証拠画像キーから取得URLを解決する。
type ProofURLResolver interface {
	ProofURL(ctx context.Context, key string) string
}

// LogHandler は活動記録のHTTPハンドラー。
type LogHandler struct {
	service      LogServiceInterface
	proofMaxSize int64
}

// NewLogHandler はLogHandlerを生成する。proofMaxSizeが0以下の場合は既定値を使う。
func NewLogHandler(service LogServiceInterface, proofMaxSize int64) *LogHandler {
	if proofMaxSize <= 0 {
		proofMaxSize = activity.DefaultProofMaxSize
	}
	return &LogHandler{
		service:      service,
		proofMaxSize: proofMaxSize,
	}
}

type logResponse struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Activity   string    `json:"activity"`
	Value      float64   `json:"value"`
	DistanceKM *float64  `json:"distance_km,omitempty"`
	Note       string    `json:"note"`
	Timestamp  time.Time `json:"timestamp"`
	ProofURL   string    `json:"proof_url,omitempty"`
	Imported   bool      `json:"imported"`
	CheerCount int       `json:"cheer_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func toLogResponse(ctx context.Context, l *model.Log, proofs ProofURLResolver) logResponse {
	return logResponse{
		ID:         l.ID,
		UserID:     l.UserID,
		Activity:   l.Activity,
		Value:      l.Value,
		DistanceKM: l.DistanceKM,
		Note:       l.Note,
		Timestamp:  l.Timestamp,
		ProofURL:   proofs.ProofURL(ctx, l.ProofKey),
		Imported:   l.ExternalID != "",
		CheerCount: l.CheerCount,
		CreatedAt:  l.CreatedAt,
	}
}

type createLogRequest struct {
	Activity   string     `json:"activity"`
	Value      *float64   `json:"value"`
	DistanceKM *float64   `json:"distance_km"`
	Note       string     `json:"note"`
	Timestamp  *time.Time `json:"timestamp"`
}

type historyResponse struct {
	Date streak.Date   `json:"date"`
	Logs []logResponse `json:"logs"`
}

// CreateLog は活動記録を作成する。
// JSONボディ、または証拠画像を含むmultipart/form-dataを受け付ける。
// POST /api/logs
func (h *LogHandler) CreateLog(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var (
		in  activity.CreateLogInput
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		in, err = h.parseMultipart(w, r)
		if err != nil {
			handleServiceError(w, err)
			return
		}
	} else {
		var req createLogRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Value == nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidValueError("value"))
			return
		}
		in = activity.CreateLogInput{
			Activity:   req.Activity,
			Value:      *req.Value,
			DistanceKM: req.DistanceKM,
			Note:       req.Note,
		}
		if req.Timestamp != nil {
			in.Timestamp = *req.Timestamp
		}
	}

	log, err := h.service.CreateLog(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLogResponse(r.Context(), log, h.service))
}

// parseMultipart はmultipart/form-dataから記録の入力を組み立てる。
// 証拠画像は"proof"フィールドで受け取る。
func (h *LogHandler) parseMultipart(w http.ResponseWriter, r *http.Request) (activity.CreateLogInput, error) {
	var in activity.CreateLogInput

	r.Body = http.MaxBytesReader(w, r.Body, h.proofMaxSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return in, model.NewProofTooLargeError(h.proofMaxSize)
		}
		return in, model.NewInvalidRequestError()
	}

	in.Activity = r.FormValue("activity")
	in.Note = r.FormValue("note")

	value, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("value")), 64)
	if err != nil {
		return in, model.NewInvalidValueError("value")
	}
	in.Value = value

	if raw := strings.TrimSpace(r.FormValue("distance_km")); raw != "" {
		km, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return in, model.NewInvalidValueError("distance_km")
		}
		in.DistanceKM = &km
	}

	if raw := strings.TrimSpace(r.FormValue("timestamp")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return in, model.NewInvalidValueError("timestamp")
		}
		in.Timestamp = ts
	}

	file, _, err := r.FormFile("proof")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return in, nil
		}
		return in, model.NewInvalidProofError()
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.proofMaxSize+1))
	if err != nil {
		return in, model.NewInvalidProofError()
	}
	if int64(len(data)) > h.proofMaxSize {
		return in, model.NewProofTooLargeError(h.proofMaxSize)
	}
	if len(data) > 0 {
		in.Proof = data
	}
	return in, nil
}

// History は指定日の本人の記録を返す。dateを省略すると今日の記録を返す。
// GET /api/logs?date=YYYY-MM-DD
func (h *LogHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	history, err := h.service.History(r.Context(), userID, r.URL.Query().Get("date"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := historyResponse{
		Date: history.Date,
		Logs: make([]logResponse, 0, len(history.Logs)),
	}
	for _, l := range history.Logs {
		resp.Logs = append(resp.Logs, toLogResponse(r.Context(), l, h.service))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Cheer は他ユーザーの記録を応援する。
// POST /api/logs/{id}/cheer
func (h *LogHandler) Cheer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	count, err := h.service.Cheer(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"cheer_count": count})
}
