package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/habits/internal/catalog"
	"github.com/hitoshi/habits/internal/model"
	"github.com/hitoshi/habits/internal/repository"
	"github.com/hitoshi/habits/internal/security"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn        func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn     func(ctx context.Context, email string) (*model.User, error)
	createWithGoalsFn func(ctx context.Context, user *model.User, goals []model.Goal) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) CreateWithGoals(ctx context.Context, user *model.User, goals []model.Goal) error {
	if m.createWithGoalsFn != nil {
		return m.createWithGoalsFn(ctx, user, goals)
	}
	return nil
}

func (m *mockUserRepo) UpdateName(_ context.Context, _, _ string) error { return nil }
func (m *mockUserRepo) DeleteByID(_ context.Context, _ string) error    { return nil }
func (m *mockUserRepo) ListAll(_ context.Context) ([]*model.User, error) {
	return nil, nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	findByIDFn   func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(_ context.Context, _ string) error { return nil }
func (m *mockSessionRepo) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)

func newTestService(users *mockUserRepo, sessions *mockSessionRepo) *Service {
	return NewService(users, sessions, catalog.Default(), security.NewTextSanitizer(), ServiceConfig{
		SessionMaxAge: 86400,
		BcryptCost:    bcrypt.MinCost,
	})
}

func apiErrorCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// --- テスト ---

func TestRegister_CreatesUserWithDefaultGoalsAndSession(t *testing.T) {
	var createdUser *model.User
	var createdGoals []model.Goal
	var createdSession *model.Session

	users := &mockUserRepo{
		createWithGoalsFn: func(_ context.Context, user *model.User, goals []model.Goal) error {
			createdUser = user
			createdGoals = goals
			return nil
		},
	}
	sessions := &mockSessionRepo{
		createFn: func(_ context.Context, s *model.Session) error {
			createdSession = s
			return nil
		},
	}
	svc := newTestService(users, sessions)

	user, session, err := svc.Register(context.Background(), "  Alice@Example.com ", "correct horse", "<b>Alice</b>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if user.Email != "alice@example.com" {
		t.Errorf("Email = %q, want lower-cased", user.Email)
	}
	if user.Name != "Alice" {
		t.Errorf("Name = %q, want sanitized %q", user.Name, "Alice")
	}
	if bcrypt.CompareHashAndPassword([]byte(createdUser.PasswordHash), []byte("correct horse")) != nil {
		t.Error("stored hash does not match password")
	}
	if len(createdGoals) != len(catalog.Default().All()) {
		t.Errorf("default goals = %d, want %d", len(createdGoals), len(catalog.Default().All()))
	}
	for _, g := range createdGoals {
		if g.UserID != user.ID {
			t.Errorf("goal %s UserID = %q, want %q", g.Activity, g.UserID, user.ID)
		}
	}
	if session == nil || createdSession == nil || session.UserID != user.ID {
		t.Fatalf("session = %+v", session)
	}
	if len(session.ID) != 64 {
		t.Errorf("session ID length = %d, want 64", len(session.ID))
	}
	if d := time.Until(session.ExpiresAt); d < 86000*time.Second || d > 86401*time.Second {
		t.Errorf("session expires in %v, want about 24h", d)
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		userName string
		wantCode string
	}{
		{"メールアドレスなし", "", "password123", "Alice", model.ErrCodeInvalidEmail},
		{"不正なメールアドレス", "not-an-email", "password123", "Alice", model.ErrCodeInvalidEmail},
		{"表示名付きアドレス", "Alice <alice@example.com>", "password123", "Alice", model.ErrCodeInvalidEmail},
		{"短いパスワード", "alice@example.com", "short", "Alice", model.ErrCodeWeakPassword},
		{"長すぎるパスワード", "alice@example.com", string(make([]byte, 73)), "Alice", model.ErrCodeWeakPassword},
		{"空の表示名", "alice@example.com", "password123", "   ", model.ErrCodeInvalidName},
		{"タグのみの表示名", "alice@example.com", "password123", "<i></i>", model.ErrCodeInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &mockUserRepo{
				createWithGoalsFn: func(context.Context, *model.User, []model.Goal) error {
					t.Fatal("CreateWithGoals should not be called")
					return nil
				},
			}
			svc := newTestService(users, &mockSessionRepo{})
			_, _, err := svc.Register(context.Background(), tt.email, tt.password, tt.userName)
			if got := apiErrorCode(err); got != tt.wantCode {
				t.Errorf("error code = %q (%v), want %q", got, err, tt.wantCode)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	users := &mockUserRepo{
		createWithGoalsFn: func(context.Context, *model.User, []model.Goal) error {
			return repository.ErrDuplicateEmail
		},
	}
	svc := newTestService(users, &mockSessionRepo{})

	_, _, err := svc.Register(context.Background(), "alice@example.com", "password123", "Alice")
	if got := apiErrorCode(err); got != model.ErrCodeEmailTaken {
		t.Errorf("error code = %q, want %q", got, model.ErrCodeEmailTaken)
	}
}

func TestRegister_RepositoryError(t *testing.T) {
	users := &mockUserRepo{
		createWithGoalsFn: func(context.Context, *model.User, []model.Goal) error {
			return errors.New("db down")
		},
	}
	svc := newTestService(users, &mockSessionRepo{})

	_, _, err := svc.Register(context.Background(), "alice@example.com", "password123", "Alice")
	if err == nil {
		t.Fatal("expected error")
	}
	if apiErrorCode(err) != "" {
		t.Errorf("repository failure should not be an APIError: %v", err)
	}
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	stored := &model.User{ID: "user-1", Email: "alice@example.com", Name: "Alice", PasswordHash: string(hash)}
	cliUser := &model.User{ID: "user-2", Email: "cli@example.com", Name: "Cli"}

	users := &mockUserRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			switch email {
			case stored.Email:
				return stored, nil
			case cliUser.Email:
				return cliUser, nil
			}
			return nil, nil
		},
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantCode string
	}{
		{"正しい認証情報", "ALICE@example.com", "password123", ""},
		{"パスワード不一致", "alice@example.com", "wrong-password", model.ErrCodeInvalidCredentials},
		{"未登録メールアドレス", "nobody@example.com", "password123", model.ErrCodeInvalidCredentials},
		{"パスワード未設定ユーザー", "cli@example.com", "", model.ErrCodeInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sessionCreated bool
			sessions := &mockSessionRepo{
				createFn: func(context.Context, *model.Session) error {
					sessionCreated = true
					return nil
				},
			}
			svc := newTestService(users, sessions)

			user, session, err := svc.Login(context.Background(), tt.email, tt.password)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if user.ID != stored.ID || session.UserID != stored.ID || !sessionCreated {
					t.Errorf("user = %+v, session = %+v", user, session)
				}
				return
			}
			if got := apiErrorCode(err); got != tt.wantCode {
				t.Errorf("error code = %q, want %q", got, tt.wantCode)
			}
			if sessionCreated {
				t.Error("session should not be created on failure")
			}
		})
	}
}

func TestEnsureLocalUser(t *testing.T) {
	existing := &model.User{ID: "user-1", Email: "alice@example.com", Name: "Alice"}
	var created *model.User
	users := &mockUserRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			if email == existing.Email {
				return existing, nil
			}
			return nil, nil
		},
		createWithGoalsFn: func(_ context.Context, user *model.User, _ []model.Goal) error {
			created = user
			return nil
		},
	}
	svc := newTestService(users, &mockSessionRepo{})

	u, isNew, err := svc.EnsureLocalUser(context.Background(), "alice@example.com", "ignored")
	if err != nil || isNew || u.ID != existing.ID {
		t.Errorf("existing: user = %+v, isNew = %v, err = %v", u, isNew, err)
	}

	u, isNew, err = svc.EnsureLocalUser(context.Background(), "bob@example.com", "Bob")
	if err != nil || !isNew {
		t.Fatalf("new: isNew = %v, err = %v", isNew, err)
	}
	if created == nil || created.PasswordHash != "" || u.Name != "Bob" {
		t.Errorf("created = %+v", created)
	}
}

func TestLogout(t *testing.T) {
	var deletedID string
	sessions := &mockSessionRepo{
		deleteByIDFn: func(_ context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	svc := newTestService(&mockUserRepo{}, sessions)

	if err := svc.Logout(context.Background(), "sess-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deletedID != "sess-1" {
		t.Errorf("deleted = %q, want sess-1", deletedID)
	}
	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Error("empty session ID should return error")
	}
}

func TestGetCurrentUser(t *testing.T) {
	users := &mockUserRepo{
		findByIDFn: func(_ context.Context, id string) (*model.User, error) {
			if id == "user-1" {
				return &model.User{ID: "user-1", Name: "Alice"}, nil
			}
			return nil, nil
		},
	}
	sessions := &mockSessionRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Session, error) {
			switch id {
			case "valid":
				return &model.Session{ID: id, UserID: "user-1"}, nil
			case "orphan":
				return &model.Session{ID: id, UserID: "deleted"}, nil
			}
			return nil, nil
		},
	}
	svc := newTestService(users, sessions)

	u, err := svc.GetCurrentUser(context.Background(), "valid")
	if err != nil || u.ID != "user-1" {
		t.Errorf("valid session: user = %+v, err = %v", u, err)
	}
	for _, id := range []string{"", "expired", "orphan"} {
		if _, err := svc.GetCurrentUser(context.Background(), id); err == nil {
			t.Errorf("session %q: expected error", id)
		}
	}
}
