package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/habits/internal/activity"
	"github.com/hitoshi/habits/internal/auth"
	"github.com/hitoshi/habits/internal/cache"
	"github.com/hitoshi/habits/internal/catalog"
	"github.com/hitoshi/habits/internal/config"
	"github.com/hitoshi/habits/internal/dashboard"
	"github.com/hitoshi/habits/internal/events"
	"github.com/hitoshi/habits/internal/goal"
	"github.com/hitoshi/habits/internal/metrics"
	"github.com/hitoshi/habits/internal/repository"
	"github.com/hitoshi/habits/internal/security"
	"github.com/hitoshi/habits/internal/social"
	"github.com/hitoshi/habits/internal/storage"
	"github.com/hitoshi/habits/internal/streak"
	"github.com/hitoshi/habits/internal/user"
)

// proofURLBase はローカル保存した証拠画像の公開パス。
const proofURLBase = "/uploads"

// repositories はPostgreSQLリポジトリ群。
type repositories struct {
	users    *repository.PostgresUserRepo
	sessions *repository.PostgresSessionRepo
	goals    *repository.PostgresGoalRepo
	logs     *repository.PostgresLogRepo
	follows  *repository.PostgresFollowRepo
	daysOff  *repository.PostgresDayOffRepo
	tokens   *repository.PostgresServiceTokenRepo
}

func newRepositories(db *sql.DB) *repositories {
	return &repositories{
		users:    repository.NewPostgresUserRepo(db),
		sessions: repository.NewPostgresSessionRepo(db),
		goals:    repository.NewPostgresGoalRepo(db),
		logs:     repository.NewPostgresLogRepo(db),
		follows:  repository.NewPostgresFollowRepo(db),
		daysOff:  repository.NewPostgresDayOffRepo(db),
		tokens:   repository.NewPostgresServiceTokenRepo(db),
	}
}

// services はサーバーとCLIが共有するドメインサービス群。
type services struct {
	repos      *repositories
	catalog    *catalog.Catalog
	cache      cache.Cache
	publisher  events.Publisher
	proofs     storage.ProofStore
	uploadsDir string
	registry   *prometheus.Registry
	metrics    *metrics.Collector
	// invalidator は記録の取り込み時にダッシュボードキャッシュを無効化する。
	invalidator *dashboard.Invalidator
	sanitizer   security.TextSanitizer

	auth      *auth.Service
	goals     *goal.Service
	activity  *activity.Service
	dashboard *dashboard.Service
	social    *social.Service
	users     *user.Service
}

// newServices は設定に従って外部接続を開き、ドメインサービスを組み立てる。
// 戻り値のservicesは使用後にCloseする必要がある。
func newServices(ctx context.Context, cfg *config.Config, db *sql.DB) (*services, error) {
	activities, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	c, err := newCache(ctx, cfg)
	if err != nil {
		return nil, err
	}

	proofs, uploadsDir, err := newProofStore(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	registry := newRegistry()
	collector := metrics.NewCollector(registry)
	publisher := newPublisher(cfg)
	sanitizer := security.NewTextSanitizer()
	repos := newRepositories(db)
	invalidator := dashboard.NewInvalidator(c)

	s := &services{
		repos:      repos,
		catalog:    activities,
		cache:      c,
		publisher:  publisher,
		proofs:     proofs,
		uploadsDir: uploadsDir,
		registry:   registry,
		metrics:    collector,

		invalidator: invalidator,
		sanitizer:   sanitizer,
	}

	s.auth = auth.NewService(repos.users, repos.sessions, activities, sanitizer, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})
	s.goals = goal.NewService(repos.goals, activities, sanitizer, invalidator)
	s.activity = activity.NewService(
		repos.logs, repos.goals, activities, proofs, publisher, collector, invalidator, sanitizer,
		activity.Config{
			CutoffHour:   cfg.CutoffHour,
			Location:     cfg.Location,
			RequireProof: cfg.RequireProof,
			ProofMaxSize: cfg.ProofMaxSize,
		},
	)
	s.dashboard = dashboard.NewService(
		repos.logs, s.goals, repos.goals, repos.users, repos.daysOff, c, collector,
		dashboard.Config{
			Policy:          streakPolicy(cfg),
			HonorDaysOff:    cfg.HonorDaysOff,
			CacheTTL:        cfg.DashboardCacheTTL,
			LeaderboardSize: cfg.LeaderboardSize,
		},
	)
	s.social = social.NewService(repos.users, repos.follows, repos.logs, publisher)
	s.users = user.NewService(
		repos.users, repos.sessions, repos.tokens, repos.daysOff,
		repos.logs, proofs, invalidator, sanitizer,
	)

	return s, nil
}

// Close は外部接続を閉じる。
func (s *services) Close() {
	if err := s.publisher.Close(); err != nil {
		slog.Warn("failed to close event publisher", slog.String("error", err.Error()))
	}
	if err := s.cache.Close(); err != nil {
		slog.Warn("failed to close cache", slog.String("error", err.Error()))
	}
}

// streakPolicy は設定からストリーク計算のルールを組み立てる。
func streakPolicy(cfg *config.Config) streak.Policy {
	return streak.Policy{
		CutoffHour:    cfg.CutoffHour,
		Location:      cfg.Location,
		WeekAlignment: streak.WeekAlignment(cfg.WeekAlignment),
		MainDaily:     cfg.MainStreakDaily,
		MainWeekly:    cfg.MainStreakWeekly,
	}
}

// loadCatalog はACTIVITY_CATALOG_PATHが指定されていればそれを、なければ組み込みのカタログを返す。
func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.ActivityCatalogPath == "" {
		return catalog.Default(), nil
	}
	c, err := catalog.Load(cfg.ActivityCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity catalog: %w", err)
	}
	slog.Info("activity catalog loaded", slog.String("path", cfg.ActivityCatalogPath))
	return c, nil
}

// newCache はREDIS_ADDRが指定されていればRedis、なければ何も保持しないキャッシュを返す。
func newCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		return cache.NewNopCache(), nil
	}
	c, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("dashboard cache enabled", slog.String("redis_addr", cfg.RedisAddr))
	return c, nil
}

// newPublisher はKAFKA_BROKERSが指定されていればKafka、なければイベントを破棄するPublisherを返す。
func newPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NopPublisher{}
	}
	slog.Info("event publishing enabled",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.String("topic", cfg.KafkaTopic),
	)
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}

// newProofStore はS3_ENDPOINTが指定されていればS3互換ストレージ、なければローカルディレクトリを返す。
// ローカルの場合は配信用のディレクトリも返す。
func newProofStore(ctx context.Context, cfg *config.Config) (storage.ProofStore, string, error) {
	if cfg.S3Endpoint != "" {
		store, err := storage.NewS3Store(storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, "", err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, "", err
		}
		slog.Info("proof storage: s3", slog.String("bucket", cfg.S3Bucket))
		return store, "", nil
	}

	store, err := storage.NewLocalStore(cfg.UploadDir, proofURLBase)
	if err != nil {
		return nil, "", err
	}
	slog.Info("proof storage: local", slog.String("dir", store.Root()))
	return store, store.Root(), nil
}

// newRegistry はGoランタイムとプロセスのコレクターを登録したレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
