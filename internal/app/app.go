package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/habits/internal/cli"
	"github.com/hitoshi/habits/internal/config"
	"github.com/hitoshi/habits/internal/database"
	"github.com/hitoshi/habits/internal/handler"
	"github.com/hitoshi/habits/internal/integration/strava"
	"github.com/hitoshi/habits/internal/logger"
	"github.com/hitoshi/habits/internal/metrics"
	"github.com/hitoshi/habits/internal/middleware"
	"github.com/hitoshi/habits/internal/model"
	"github.com/hitoshi/habits/internal/security"
	"github.com/hitoshi/habits/internal/tracing"
	"github.com/hitoshi/habits/internal/worker/cleanup"
	"github.com/hitoshi/habits/internal/worker/importer"
)

const (
	// stravaMaxResponseSize はStrava APIレスポンスの最大サイズ。
	stravaMaxResponseSize = 5 << 20
	// dbPingTimeout は起動時のDB疎通確認の上限時間。
	dbPingTimeout = 10 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	config.LoadDotEnv()

	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	// 対話モードでは標準出力をメニューに使うため、ログは標準エラーに出す
	if cmd == CommandCLI {
		w = os.Stderr
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, ParseMigrateAction(args))
	case CommandCLI:
		return runCLI(cfg, os.Stdin, os.Stdout)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("database connection established")
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. トレーシング
	shutdownTracing, err := tracing.Setup(ctx, cfg.OTLPEndpoint, cfg.OTELServiceName)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("failed to shutdown tracing", slog.String("error", err.Error()))
		}
	}()

	// 3. ドメインサービスの初期化
	svc, err := newServices(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer svc.Close()

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogSubmit),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		HealthChecker:   db,
		MetricsHandler:  metrics.SetupMetricsRoute(svc.registry),
		MetricsRecorder: svc.metrics,
		Logger:          slog.Default(),

		SessionFinder:      svc.repos.sessions,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure:   cfg.CookieSecure,
			CookieDomain:   cfg.CookieDomain,
			TrustedOrigins: cfg.CORSAllowedOrigins,
		},
		UploadsDir: svc.uploadsDir,

		AuthService: svc.auth,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		Catalog:     svc.catalog,
		GoalService: svc.goals,

		LogService:   svc.activity,
		ProofMaxSize: cfg.ProofMaxSize,

		DashboardService: svc.dashboard,
		SocialService:    svc.social,
		UserService:      svc.users,
	}

	router := tracing.Middleware("habits-api")(handler.NewRouter(deps))

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 外部サービスのインポートスケジューラと期限切れセッションのクリーンアップを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. ドメインサービスの初期化
	svc, err := newServices(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer svc.Close()

	// 3. インポーターの初期化
	ssrfGuard := security.NewSSRFGuard()
	stravaClient := strava.NewClient(
		ssrfGuard.NewSafeClient(cfg.ImportTimeout, stravaMaxResponseSize),
		slog.Default(),
		cfg.StravaAPIBaseURL,
	)
	stravaImporter := importer.NewStravaImporter(
		stravaClient, svc.repos.logs, svc.repos.tokens,
		svc.invalidator, svc.metrics, svc.sanitizer, slog.Default(), cfg.ImportTimeout,
	)
	scheduler := importer.NewScheduler(
		svc.repos.tokens, stravaImporter, model.ServiceStrava,
		slog.Default(), cfg.ImportMaxConcurrent,
	)

	// 4. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(slog.Default(), svc.metrics,
		cleanup.Target{Name: "sessions", Purger: svc.repos.sessions},
	)

	// 5. メトリクスとヘルスチェックの公開
	opsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           workerOpsHandler(db, svc),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker ops server error", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = opsServer.Shutdown(shutdownCtx)
	}()

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("import_interval", cfg.ImportInterval),
		slog.Int("max_concurrent", cfg.ImportMaxConcurrent),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go cleanupJob.Start(ctx, 24*time.Hour)

	// インポートスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.ImportInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// workerOpsHandler はワーカー用の /health と /metrics を返す。
func workerOpsHandler(db *sql.DB, svc *services) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /health", handler.NewHealthHandler(db))
	mux.Handle("GET /metrics", metrics.SetupMetricsRoute(svc.registry))
	return mux
}

// runMigrate はデータベースマイグレーションを実行する。
// actionに応じて未適用分の適用、1つ前への巻き戻し、現在バージョンの表示を行う。
func runMigrate(cfg *config.Config, action MigrateAction) error {
	slog.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case MigrateDown:
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migration rolled back")
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		latest, err := database.LatestMigration()
		if err != nil {
			return err
		}
		slog.Info("database migration version",
			slog.Uint64("version", uint64(version)),
			slog.Uint64("latest", uint64(latest)),
			slog.Bool("dirty", dirty),
			slog.Bool("pending", version < latest),
		)
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}
	return nil
}

// runCLI は対話型のテキストメニューを起動する。
func runCLI(cfg *config.Config, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := newServices(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer svc.Close()

	c := cli.New(in, out, cli.Deps{
		Accounts: svc.auth,
		Goals:    svc.goals,
		Logs:     svc.activity,
		History:  svc.repos.logs,
		Social:   svc.social,
	}, cli.Config{
		CutoffHour: cfg.CutoffHour,
		Location:   cfg.Location,
		Catalog:    svc.catalog,
	})
	return c.Run(ctx)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
