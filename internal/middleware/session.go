// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/habits/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はsession_id Cookieのセッションを検証し、ユーザーIDをコンテキストに注入する。
// トレース中のスパンにはuser.id属性を付ける。未認証リクエストには401 UNAUTHORIZEDを返す。
func NewSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				rejectSession(w, r, "missing cookie")
				return
			}

			// 期限切れのセッションはリポジトリがnilを返す
			session, err := sessionFinder.FindByID(ctx, cookie.Value)
			if err != nil {
				slog.ErrorContext(ctx, "failed to find session",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if session == nil {
				rejectSession(w, r, "unknown or expired session")
				return
			}

			trace.SpanFromContext(ctx).SetAttributes(attribute.String("user.id", session.UserID))
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(ctx, session.UserID)))
		})
	}
}

func rejectSession(w http.ResponseWriter, r *http.Request, reason string) {
	slog.DebugContext(r.Context(), "session rejected",
		slog.String("path", r.URL.Path),
		slog.String("reason", reason),
	)
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
// ロギングミドルウェアの内側で呼ばれた場合は、リクエストログにもユーザーIDを伝える。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.userID = userID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}
