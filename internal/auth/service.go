// Package auth はメールアドレスとパスワードによる認証、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/habits/internal/catalog"
	"github.com/hitoshi/habits/internal/model"
	"github.com/hitoshi/habits/internal/repository"
	"github.com/hitoshi/habits/internal/security"
)

const (
	// MinPasswordLength はパスワードの最小文字数。
	MinPasswordLength = 8
	// MaxNameLength は表示名の最大文字数。
	MaxNameLength = 50
	// bcryptの入力上限は72バイト。
	maxPasswordBytes = 72
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int // 0の場合はbcrypt.DefaultCost
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	catalog     *catalog.Catalog
	sanitizer   security.TextSanitizer
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	activities *catalog.Catalog,
	sanitizer security.TextSanitizer,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		catalog:     activities,
		sanitizer:   sanitizer,
		config:      config,
	}
}

// Register は新規ユーザーを作成し、セッションを発行する。
// 初期目標はカタログのデフォルト値で同一トランザクション内に作成される。
func (s *Service) Register(ctx context.Context, email, password, name string) (*model.User, *model.Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, nil, model.NewWeakPasswordError(MinPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return nil, nil, &model.APIError{
			Code:     model.ErrCodeWeakPassword,
			Message:  fmt.Sprintf("パスワードは%dバイト以内で入力してください。", maxPasswordBytes),
			Category: "validation",
			Action:   "より短いパスワードを設定してください。",
		}
	}
	name = s.sanitizer.Sanitize(name, 0)
	if name == "" || len([]rune(name)) > MaxNameLength {
		return nil, nil, model.NewInvalidNameError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.createUser(ctx, email, name, string(hash))
	if err != nil {
		return nil, nil, err
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	return user, session, nil
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
// メールアドレスの存在有無とパスワード不一致は区別しない。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return user, session, nil
}

// EnsureLocalUser はメールアドレスに対応するユーザーを返す。
// 存在しない場合はパスワードなし（Webログイン不可）のユーザーを作成する。CLIから使用する。
func (s *Service) EnsureLocalUser(ctx context.Context, email, name string) (*model.User, bool, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, false, err
	}
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	name = s.sanitizer.Sanitize(name, 0)
	if name == "" || len([]rune(name)) > MaxNameLength {
		return nil, false, model.NewInvalidNameError()
	}
	user, err := s.createUser(ctx, email, name, "")
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	return user, nil
}

// createUser はユーザーをカタログの初期目標付きで作成する。
func (s *Service) createUser(ctx context.Context, email, name, passwordHash string) (*model.User, error) {
	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	activities := s.catalog.All()
	goals := make([]model.Goal, 0, len(activities))
	for _, a := range activities {
		goals = append(goals, model.Goal{
			UserID:    user.ID,
			Activity:  a.Name,
			Target:    a.DefaultTarget,
			Period:    a.Period,
			Unit:      a.Unit,
			UpdatedAt: now,
		})
	}

	if err := s.userRepo.CreateWithGoals(ctx, user, goals); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.Int("default_goals", len(goals)),
	)
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// normalizeEmail はメールアドレスを小文字化して形式を検証する。
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > 255 {
		return "", model.NewInvalidEmailError()
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewInvalidEmailError()
	}
	return email, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
