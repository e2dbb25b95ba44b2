// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/habits/internal/model"
	"github.com/hitoshi/habits/internal/repository"
	"github.com/hitoshi/habits/internal/security"
	"github.com/hitoshi/habits/internal/streak"
)

// MaxNameLength は表示名の最大文字数。
const MaxNameLength = 50

// maxTokenLength は外部サービストークンの最大バイト数。
const maxTokenLength = 2048

// ProofKeyLister はユーザーの証拠画像キーを列挙する。
type ProofKeyLister interface {
	ListProofKeysByUser(ctx context.Context, userID string) ([]string, error)
}

// ProofDeleter は証拠画像を削除する。
type ProofDeleter interface {
	Delete(ctx context.Context, key string) error
}

// CacheInvalidator はユーザーのダッシュボードキャッシュを無効化する。
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Service はユーザー管理のサービス層。
// 表示名・外部サービストークン・休養日の管理と退会処理を提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	tokenRepo   repository.ServiceTokenRepository
	dayOffRepo  repository.DayOffRepository
	proofKeys   ProofKeyLister
	proofs      ProofDeleter
	invalidator CacheInvalidator
	sanitizer   security.TextSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	tokenRepo repository.ServiceTokenRepository,
	dayOffRepo repository.DayOffRepository,
	proofKeys ProofKeyLister,
	proofs ProofDeleter,
	invalidator CacheInvalidator,
	sanitizer security.TextSanitizer,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		tokenRepo:   tokenRepo,
		dayOffRepo:  dayOffRepo,
		proofKeys:   proofKeys,
		proofs:      proofs,
		invalidator: invalidator,
		sanitizer:   sanitizer,
	}
}

// Rename は表示名を変更する。
func (s *Service) Rename(ctx context.Context, userID, name string) (*model.User, error) {
	name = s.sanitizer.Sanitize(name, 0)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return nil, model.NewInvalidNameError()
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if err := s.userRepo.UpdateName(ctx, userID, name); err != nil {
		return nil, fmt.Errorf("表示名の更新に失敗しました: %w", err)
	}
	user.Name = name
	return user, nil
}

// SetToken は外部サービスのアクセストークンを登録する。
func (s *Service) SetToken(ctx context.Context, userID, service, token string) error {
	if !model.IsKnownService(service) {
		return model.NewUnknownServiceError(service)
	}
	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxTokenLength {
		return model.NewInvalidValueError("token")
	}

	err := s.tokenRepo.Upsert(ctx, &model.ServiceToken{
		UserID:    userID,
		Service:   service,
		Token:     token,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("トークンの保存に失敗しました: %w", err)
	}

	slog.Info("service token saved",
		slog.String("user_id", userID),
		slog.String("service", service),
	)
	return nil
}

// ClearToken は外部サービスのアクセストークンを削除する。
func (s *Service) ClearToken(ctx context.Context, userID, service string) error {
	if !model.IsKnownService(service) {
		return model.NewUnknownServiceError(service)
	}
	if err := s.tokenRepo.Delete(ctx, userID, service); err != nil {
		return fmt.Errorf("トークンの削除に失敗しました: %w", err)
	}
	return nil
}

// ListTokens はユーザーが連携している外部サービスのトークンを返す。
func (s *Service) ListTokens(ctx context.Context, userID string) ([]*model.ServiceToken, error) {
	tokens, err := s.tokenRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("トークンの取得に失敗しました: %w", err)
	}
	if tokens == nil {
		tokens = []*model.ServiceToken{}
	}
	return tokens, nil
}

// ListDaysOff は休養日を日付順で返す。
func (s *Service) ListDaysOff(ctx context.Context, userID string) ([]streak.Date, error) {
	dates, err := s.dayOffRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("休養日の取得に失敗しました: %w", err)
	}
	if dates == nil {
		dates = []streak.Date{}
	}
	return dates, nil
}

// AddDayOff は休養日を登録する。
func (s *Service) AddDayOff(ctx context.Context, userID, date string) (streak.Date, error) {
	d, err := streak.ParseDate(date)
	if err != nil {
		return streak.Date{}, model.NewInvalidDateError(date)
	}
	if err := s.dayOffRepo.Add(ctx, userID, d); err != nil {
		return streak.Date{}, fmt.Errorf("休養日の登録に失敗しました: %w", err)
	}
	s.invalidator.Invalidate(ctx, userID)
	return d, nil
}

// RemoveDayOff は休養日を削除する。
func (s *Service) RemoveDayOff(ctx context.Context, userID, date string) error {
	d, err := streak.ParseDate(date)
	if err != nil {
		return model.NewInvalidDateError(date)
	}
	if err := s.dayOffRepo.Remove(ctx, userID, d); err != nil {
		return fmt.Errorf("休養日の削除に失敗しました: %w", err)
	}
	s.invalidator.Invalidate(ctx, userID)
	return nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（+ CASCADE: goals, logs, cheers, follows, days_off, service_tokens）→ 証拠画像
// 証拠画像の削除はベストエフォートで、失敗しても退会は完了扱いとする。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	// ユーザー存在確認
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. 証拠画像のキーを控える（ユーザー削除で記録ごと消えるため）
	var keys []string
	if s.proofKeys != nil {
		keys, err = s.proofKeys.ListProofKeysByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("証拠画像の取得に失敗しました: %w", err)
		}
	}

	// 2. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 3. ユーザーを削除
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	// 4. 証拠画像を削除
	failed := 0
	if s.proofs != nil {
		for _, key := range keys {
			if err := s.proofs.Delete(ctx, key); err != nil {
				failed++
				slog.Warn("証拠画像の削除に失敗しました",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
		slog.Int("proofs", len(keys)),
		slog.Int("proofs_failed", failed),
	)

	return nil
}
