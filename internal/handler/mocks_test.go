package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/habits/internal/activity"
	"github.com/hitoshi/habits/internal/catalog"
	"github.com/hitoshi/habits/internal/dashboard"
	"github.com/hitoshi/habits/internal/middleware"
	"github.com/hitoshi/habits/internal/model"
	"github.com/hitoshi/habits/internal/streak"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn       func(ctx context.Context, email, password, name string) (*model.User, *model.Session, error)
	loginFn          func(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, email, password, name string) (*model.User, *model.Session, error) {
	return m.registerFn(ctx, email, password, name)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	return m.loginFn(ctx, email, password)
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	return m.getCurrentUserFn(ctx, sessionID)
}

type mockCatalog struct {
	activities []catalog.Activity
}

func (m *mockCatalog) All() []catalog.Activity { return m.activities }

type mockGoalService struct {
	listFn      func(ctx context.Context, userID string) ([]model.Goal, error)
	setTargetFn func(ctx context.Context, userID, activity string, target float64, unit string) (*model.Goal, error)
}

func (m *mockGoalService) List(ctx context.Context, userID string) ([]model.Goal, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return []model.Goal{}, nil
}

func (m *mockGoalService) SetTarget(ctx context.Context, userID, activity string, target float64, unit string) (*model.Goal, error) {
	return m.setTargetFn(ctx, userID, activity, target, unit)
}

type mockLogService struct {
	createLogFn func(ctx context.Context, userID string, in activity.CreateLogInput) (*model.Log, error)
	historyFn   func(ctx context.Context, userID, date string) (*activity.DayHistory, error)
	cheerFn     func(ctx context.Context, userID, logID string) (int, error)
}

func (m *mockLogService) CreateLog(ctx context.Context, userID string, in activity.CreateLogInput) (*model.Log, error) {
	return m.createLogFn(ctx, userID, in)
}

func (m *mockLogService) History(ctx context.Context, userID, date string) (*activity.DayHistory, error) {
	return m.historyFn(ctx, userID, date)
}

func (m *mockLogService) Cheer(ctx context.Context, userID, logID string) (int, error) {
	return m.cheerFn(ctx, userID, logID)
}

func (m *mockLogService) ProofURL(_ context.Context, key string) string {
	if key == "" {
		return ""
	}
	return "/uploads/" + key
}

type mockDashboardService struct {
	getFn         func(ctx context.Context, userID string) (*dashboard.Dashboard, error)
	leaderboardFn func(ctx context.Context) ([]model.LeaderboardEntry, error)
}

func (m *mockDashboardService) Get(ctx context.Context, userID string) (*dashboard.Dashboard, error) {
	return m.getFn(ctx, userID)
}

func (m *mockDashboardService) Leaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	return m.leaderboardFn(ctx)
}

type mockSocialService struct {
	listUsersFn func(ctx context.Context, viewerID string) ([]model.UserWithFollowState, error)
	followFn    func(ctx context.Context, followerID, followedID string) error
	unfollowFn  func(ctx context.Context, followerID, followedID string) error
	feedFn      func(ctx context.Context, viewerID string) ([]model.FeedEntry, error)
}

func (m *mockSocialService) ListUsers(ctx context.Context, viewerID string) ([]model.UserWithFollowState, error) {
	return m.listUsersFn(ctx, viewerID)
}

func (m *mockSocialService) Follow(ctx context.Context, followerID, followedID string) error {
	return m.followFn(ctx, followerID, followedID)
}

func (m *mockSocialService) Unfollow(ctx context.Context, followerID, followedID string) error {
	return m.unfollowFn(ctx, followerID, followedID)
}

func (m *mockSocialService) Feed(ctx context.Context, viewerID string) ([]model.FeedEntry, error) {
	return m.feedFn(ctx, viewerID)
}

type mockUserService struct {
	renameFn       func(ctx context.Context, userID, name string) (*model.User, error)
	setTokenFn     func(ctx context.Context, userID, service, token string) error
	clearTokenFn   func(ctx context.Context, userID, service string) error
	listTokensFn   func(ctx context.Context, userID string) ([]*model.ServiceToken, error)
	listDaysOffFn  func(ctx context.Context, userID string) ([]streak.Date, error)
	addDayOffFn    func(ctx context.Context, userID, date string) (streak.Date, error)
	removeDayOffFn func(ctx context.Context, userID, date string) error
	withdrawFn     func(ctx context.Context, userID string) error
}

func (m *mockUserService) Rename(ctx context.Context, userID, name string) (*model.User, error) {
	return m.renameFn(ctx, userID, name)
}

func (m *mockUserService) SetToken(ctx context.Context, userID, service, token string) error {
	return m.setTokenFn(ctx, userID, service, token)
}

func (m *mockUserService) ClearToken(ctx context.Context, userID, service string) error {
	return m.clearTokenFn(ctx, userID, service)
}

func (m *mockUserService) ListTokens(ctx context.Context, userID string) ([]*model.ServiceToken, error) {
	return m.listTokensFn(ctx, userID)
}

func (m *mockUserService) ListDaysOff(ctx context.Context, userID string) ([]streak.Date, error) {
	return m.listDaysOffFn(ctx, userID)
}

func (m *mockUserService) AddDayOff(ctx context.Context, userID, date string) (streak.Date, error) {
	return m.addDayOffFn(ctx, userID, date)
}

func (m *mockUserService) RemoveDayOff(ctx context.Context, userID, date string) error {
	return m.removeDayOffFn(ctx, userID, date)
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// --- ヘルパー ---

// withUserID はリクエストコンテキストに認証済みユーザーIDを注入する。
func withUserID(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
}

// decodeErrorCode はエラーレスポンスのcodeを返す。
func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body.Code
}

func mustDate(t *testing.T, s string) streak.Date {
	t.Helper()
	d, err := streak.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}
