package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/habits/internal/metrics"
	"github.com/hitoshi/habits/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 運用
	HealthChecker   HealthChecker
	MetricsHandler  http.Handler
	MetricsRecorder middleware.StatusRecorder
	Logger          *slog.Logger

	// ミドルウェア依存
	SessionFinder      middleware.SessionFinder
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	CSRF               middleware.CSRFConfig

	// UploadsDir はローカル保存した証拠画像のディレクトリ。空の場合は配信しない。
	UploadsDir string

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 目標
	Catalog     CatalogReader
	GoalService GoalServiceInterface

	// 記録
	LogService   LogServiceInterface
	ProofMaxSize int64

	// 集計
	DashboardService DashboardServiceInterface

	// ソーシャル
	SocialService SocialServiceInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → CSRF → Session → RateLimit(General)
//
// /health、/metrics、/auth/csrf-token はCSRF以降のチェーンの外に配置する。
// 認証ルート（/auth/*）はSession以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := deps.MetricsRecorder
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(recorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	goalHandler := NewGoalHandler(deps.Catalog, deps.GoalService)
	logHandler := NewLogHandler(deps.LogService, deps.ProofMaxSize)
	dashboardHandler := NewDashboardHandler(deps.DashboardService)
	socialHandler := NewSocialHandler(deps.SocialService, deps.LogService)
	userHandler := NewUserHandler(deps.UserService)

	// トークン発行自体はCSRF検証の外に置く
	r.Method(http.MethodGet, "/auth/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		// --- 認証不要のルート ---
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/me", authHandler.Me)

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/api/activities", goalHandler.ListActivities)

			r.Route("/api/goals", func(r chi.Router) {
				r.Get("/", goalHandler.ListGoals)
				r.Put("/{activity}", goalHandler.SetTarget)
			})

			r.Route("/api/logs", func(r chi.Router) {
				// POST /api/logs - 記録作成（記録専用レート制限を追加）
				r.With(deps.RateLimiter.LogSubmitMiddleware()).Post("/", logHandler.CreateLog)
				r.Get("/", logHandler.History)
				r.Post("/{id}/cheer", logHandler.Cheer)
			})

			r.Get("/api/dashboard", dashboardHandler.Get)
			r.Get("/api/leaderboard", dashboardHandler.Leaderboard)
			r.Get("/api/feed", socialHandler.Feed)

			r.Route("/api/users", func(r chi.Router) {
				r.Get("/", socialHandler.ListUsers)

				r.Route("/me", func(r chi.Router) {
					r.Patch("/", userHandler.Rename)
					r.Delete("/", userHandler.Withdraw)
					r.Get("/tokens", userHandler.ListTokens)
					r.Put("/tokens/{service}", userHandler.SetToken)
					r.Delete("/tokens/{service}", userHandler.ClearToken)
				})

				r.Put("/{id}/follow", socialHandler.Follow)
				r.Delete("/{id}/follow", socialHandler.Unfollow)
			})

			r.Route("/api/days-off", func(r chi.Router) {
				r.Get("/", userHandler.ListDaysOff)
				r.Put("/{date}", userHandler.AddDayOff)
				r.Delete("/{date}", userHandler.RemoveDayOff)
			})

			if deps.UploadsDir != "" {
				r.Handle("/uploads/*", http.StripPrefix("/uploads/", uploadsHandler(deps.UploadsDir)))
			}
		})
	})

	return r
}

// uploadsHandler はローカル保存の証拠画像を配信する。ディレクトリ一覧は返さない。
func uploadsHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
