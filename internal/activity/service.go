// Package activity は活動記録の作成・履歴参照・応援を提供する。
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/habits/internal/catalog"
	"github.com/hitoshi/habits/internal/events"
	"github.com/hitoshi/habits/internal/model"
	"github.com/hitoshi/habits/internal/security"
	"github.com/hitoshi/habits/internal/storage"
	"github.com/hitoshi/habits/internal/streak"
)

const (
	// MaxActivityLength は活動名の最大文字数。
	MaxActivityLength = 50
	// DefaultNoteMaxLength はメモの最大文字数の既定値。
	DefaultNoteMaxLength = 500
	// DefaultProofMaxSize は証拠画像の最大バイト数の既定値。
	DefaultProofMaxSize = 5 << 20
)

// LogStore は記録の永続化に必要な操作。
type LogStore interface {
	Create(ctx context.Context, log *model.Log) error
	FindByID(ctx context.Context, id string) (*model.Log, error)
	ListByUserBetween(ctx context.Context, userID string, from, to time.Time) ([]*model.Log, error)
	AddCheer(ctx context.Context, logID, userID string) (bool, error)
}

// GoalLister はユーザーが目標を持つ活動（独自習慣を含む）を返す。
type GoalLister interface {
	ListByUser(ctx context.Context, userID string) ([]model.Goal, error)
}

// CacheInvalidator はユーザーのダッシュボードキャッシュを無効化する。
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Metrics は記録に関するメトリクスの記録先。
type Metrics interface {
	RecordLogCreated(activity string)
	RecordCheer()
}

// Config は記録サービスの設定。
type Config struct {
	CutoffHour    int
	Location      *time.Location
	RequireProof  bool
	ProofMaxSize  int64
	NoteMaxLength int
}

// CreateLogInput は記録作成の入力。
type CreateLogInput struct {
	Activity   string
	Value      float64
	DistanceKM *float64
	Note       string
	// Timestamp は記録時刻。ゼロ値の場合は現在時刻を使う。未来の時刻は受け付けない。
	Timestamp time.Time
	// Proof は証拠画像（PNG/JPEG）。無い場合はnil。
	Proof []byte
}

// DayHistory は1日分（有効日付単位）の記録。
type DayHistory struct {
	Date streak.Date
	Logs []*model.Log
}

// Service は活動記録のサービス層。
type Service struct {
	logs        LogStore
	goals       GoalLister
	catalog     *catalog.Catalog
	proofs      storage.ProofStore
	publisher   events.Publisher
	metrics     Metrics
	invalidator CacheInvalidator
	sanitizer   security.TextSanitizer
	config      Config
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	logs LogStore,
	goals GoalLister,
	activities *catalog.Catalog,
	proofs storage.ProofStore,
	publisher events.Publisher,
	metrics Metrics,
	invalidator CacheInvalidator,
	sanitizer security.TextSanitizer,
	config Config,
) *Service {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.ProofMaxSize <= 0 {
		config.ProofMaxSize = DefaultProofMaxSize
	}
	if config.NoteMaxLength <= 0 {
		config.NoteMaxLength = DefaultNoteMaxLength
	}
	return &Service{
		logs:        logs,
		goals:       goals,
		catalog:     activities,
		proofs:      proofs,
		publisher:   publisher,
		metrics:     metrics,
		invalidator: invalidator,
		sanitizer:   sanitizer,
		config:      config,
		now:         time.Now,
	}
}

// CreateLog は記録を作成する。
// 活動はカタログに載っているか、ユーザーが目標を設定済みである必要がある。
func (s *Service) CreateLog(ctx context.Context, userID string, in CreateLogInput) (*model.Log, error) {
	name := s.sanitizer.Sanitize(in.Activity, 0)
	if name == "" || utf8.RuneCountInString(name) > MaxActivityLength {
		return nil, model.NewInvalidActivityError()
	}
	if err := validateAmount("value", in.Value); err != nil {
		return nil, err
	}
	if in.DistanceKM != nil {
		if err := validateAmount("distance_km", *in.DistanceKM); err != nil {
			return nil, err
		}
	}

	now := s.now()
	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}
	if ts.After(now) {
		return nil, model.NewInvalidDateError(ts.Format(time.RFC3339))
	}

	known, err := s.isKnownActivity(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, model.NewUnknownActivityError(name)
	}

	var ext, contentType string
	if len(in.Proof) == 0 {
		if s.config.RequireProof {
			return nil, model.NewProofRequiredError()
		}
	} else {
		if int64(len(in.Proof)) > s.config.ProofMaxSize {
			return nil, model.NewProofTooLargeError(s.config.ProofMaxSize)
		}
		ext, contentType, err = detectProofType(in.Proof)
		if err != nil {
			return nil, err
		}
	}

	log := &model.Log{
		ID:         uuid.New().String(),
		UserID:     userID,
		Activity:   name,
		Value:      in.Value,
		DistanceKM: in.DistanceKM,
		Note:       s.sanitizer.Sanitize(in.Note, s.config.NoteMaxLength),
		Timestamp:  ts,
		CreatedAt:  now,
	}

	if ext != "" {
		date := streak.EffectiveDate(ts, s.config.CutoffHour, s.config.Location)
		key := storage.ProofKey(userID, date, ts, name, ext)
		if err := s.proofs.Save(ctx, key, contentType, in.Proof); err != nil {
			return nil, fmt.Errorf("証拠画像の保存に失敗しました: %w", err)
		}
		log.ProofKey = key
	}

	if err := s.logs.Create(ctx, log); err != nil {
		if log.ProofKey != "" {
			if delErr := s.proofs.Delete(ctx, log.ProofKey); delErr != nil {
				slog.Warn("failed to delete orphan proof",
					slog.String("key", log.ProofKey),
					slog.String("error", delErr.Error()),
				)
			}
		}
		return nil, fmt.Errorf("記録の保存に失敗しました: %w", err)
	}

	s.invalidator.Invalidate(ctx, userID)
	s.metrics.RecordLogCreated(name)
	events.Emit(ctx, s.publisher, events.Event{
		Type:      events.TypeLogCreated,
		UserID:    userID,
		SubjectID: log.ID,
		Activity:  name,
		Value:     in.Value,
	})

	slog.Info("log created",
		slog.String("user_id", userID),
		slog.String("log_id", log.ID),
		slog.String("activity", name),
		slog.Bool("proof", log.ProofKey != ""),
	)
	return log, nil
}

// History は指定した有効日付に帰属する本人の記録を返す。
// dateが空の場合は今日（締め時刻考慮）の記録を返す。
func (s *Service) History(ctx context.Context, userID, date string) (*DayHistory, error) {
	var d streak.Date
	if date == "" {
		d = streak.EffectiveDate(s.now(), s.config.CutoffHour, s.config.Location)
	} else {
		parsed, err := streak.ParseDate(date)
		if err != nil {
			return nil, model.NewInvalidDateError(date)
		}
		d = parsed
	}

	from := d.Start(s.config.CutoffHour, s.config.Location)
	to := d.AddDays(1).Start(s.config.CutoffHour, s.config.Location)
	logs, err := s.logs.ListByUserBetween(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("記録の取得に失敗しました: %w", err)
	}
	if logs == nil {
		logs = []*model.Log{}
	}
	return &DayHistory{Date: d, Logs: logs}, nil
}

// Cheer は他ユーザーの記録を応援し、応援後の応援数を返す。
// 同じ記録への2回目以降の応援は数を増やさない。
func (s *Service) Cheer(ctx context.Context, userID, logID string) (int, error) {
	// UUIDでないIDはDBに問い合わせても存在しない
	if uuid.Validate(logID) != nil {
		return 0, model.NewLogNotFoundError(logID)
	}
	log, err := s.logs.FindByID(ctx, logID)
	if err != nil {
		return 0, fmt.Errorf("記録の取得に失敗しました: %w", err)
	}
	if log == nil {
		return 0, model.NewLogNotFoundError(logID)
	}
	if log.UserID == userID {
		return 0, model.NewSelfCheerError()
	}

	added, err := s.logs.AddCheer(ctx, logID, userID)
	if err != nil {
		return 0, fmt.Errorf("応援の登録に失敗しました: %w", err)
	}
	if !added {
		return log.CheerCount, nil
	}

	s.metrics.RecordCheer()
	events.Emit(ctx, s.publisher, events.Event{
		Type:      events.TypeLogCheered,
		UserID:    userID,
		SubjectID: logID,
		Activity:  log.Activity,
	})
	return log.CheerCount + 1, nil
}

// ProofURL は証拠画像の取得URLを返す。キーが空、またはURLを作れない場合は空文字列。
func (s *Service) ProofURL(ctx context.Context, key string) string {
	if key == "" {
		return ""
	}
	u, err := s.proofs.URL(ctx, key)
	if err != nil {
		slog.Warn("failed to build proof url",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return u
}

// isKnownActivity は活動がカタログにあるか、ユーザーの目標に含まれるかを返す。
func (s *Service) isKnownActivity(ctx context.Context, userID, name string) (bool, error) {
	if _, ok := s.catalog.Lookup(name); ok {
		return true, nil
	}
	goals, err := s.goals.ListByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("目標の取得に失敗しました: %w", err)
	}
	for _, g := range goals {
		if g.Activity == name {
			return true, nil
		}
	}
	return false, nil
}

func validateAmount(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return model.NewInvalidValueError(field)
	}
	return nil
}

// detectProofType は画像の先頭バイトから形式を判定し、拡張子とContent-Typeを返す。
func detectProofType(data []byte) (ext, contentType string, err error) {
	switch ct := http.DetectContentType(data); ct {
	case "image/png":
		return "png", ct, nil
	case "image/jpeg":
		return "jpg", ct, nil
	default:
		return "", "", model.NewInvalidProofError()
	}
}
