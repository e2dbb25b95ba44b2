// Package social はフォロー関係とソーシャルフィードを提供する。
package social

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/habits/internal/events"
	"github.com/hitoshi/habits/internal/model"
)

// FeedLimit はフィードに表示する記録の件数。
const FeedLimit = 20

// UserFinder はユーザーの存在確認に使う。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// FollowStore はフォロー関係の永続化に必要な操作。
type FollowStore interface {
	Follow(ctx context.Context, followerID, followedID string) error
	Unfollow(ctx context.Context, followerID, followedID string) error
	ListUsersWithFollowState(ctx context.Context, viewerID string) ([]model.UserWithFollowState, error)
}

// FeedReader はフィード用の記録を読み出す。
type FeedReader interface {
	ListFeed(ctx context.Context, viewerID string, limit int) ([]model.FeedEntry, error)
}

// Service はソーシャル機能のサービス層。
type Service struct {
	users     UserFinder
	follows   FollowStore
	feed      FeedReader
	publisher events.Publisher
}

// NewService はServiceを生成する。
func NewService(users UserFinder, follows FollowStore, feed FeedReader, publisher events.Publisher) *Service {
	return &Service{
		users:     users,
		follows:   follows,
		feed:      feed,
		publisher: publisher,
	}
}

// ListUsers は自分以外の全ユーザーをフォロー状態付きで返す。
func (s *Service) ListUsers(ctx context.Context, viewerID string) ([]model.UserWithFollowState, error) {
	users, err := s.follows.ListUsersWithFollowState(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	if users == nil {
		users = []model.UserWithFollowState{}
	}
	return users, nil
}

// Follow は他ユーザーをフォローする。既にフォロー済みの場合も成功として扱う。
func (s *Service) Follow(ctx context.Context, followerID, followedID string) error {
	if followerID == followedID {
		return model.NewSelfFollowError()
	}
	if uuid.Validate(followedID) != nil {
		return model.NewUserNotFoundError()
	}
	target, err := s.users.FindByID(ctx, followedID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if target == nil {
		return model.NewUserNotFoundError()
	}

	if err := s.follows.Follow(ctx, followerID, followedID); err != nil {
		return fmt.Errorf("フォローに失敗しました: %w", err)
	}

	events.Emit(ctx, s.publisher, events.Event{
		Type:      events.TypeUserFollowed,
		UserID:    followerID,
		SubjectID: followedID,
	})
	slog.Info("user followed",
		slog.String("follower_id", followerID),
		slog.String("followed_id", followedID),
	)
	return nil
}

// Unfollow はフォローを解除する。フォローしていない場合も成功として扱う。
func (s *Service) Unfollow(ctx context.Context, followerID, followedID string) error {
	if uuid.Validate(followedID) != nil {
		return model.NewUserNotFoundError()
	}
	if err := s.follows.Unfollow(ctx, followerID, followedID); err != nil {
		return fmt.Errorf("フォロー解除に失敗しました: %w", err)
	}
	return nil
}

// Feed はフォロー中のユーザーと本人の最新記録を新しい順に返す。
func (s *Service) Feed(ctx context.Context, viewerID string) ([]model.FeedEntry, error) {
	entries, err := s.feed.ListFeed(ctx, viewerID, FeedLimit)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	if entries == nil {
		entries = []model.FeedEntry{}
	}
	return entries, nil
}
