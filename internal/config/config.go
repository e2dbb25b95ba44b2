package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Session
	SessionMaxAge int

	// Rate Limit
	RateLimitGeneral   int
	RateLimitLogSubmit int

	// Streak
	Location         *time.Location
	CutoffHour       int
	WeekAlignment    string
	MainStreakDaily  []string
	MainStreakWeekly string
	HonorDaysOff     bool
	LeaderboardSize  int

	// Activity
	RequireProof        bool
	ActivityCatalogPath string

	// Proof storage
	UploadDir    string
	ProofMaxSize int64
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	S3Bucket     string
	S3UseSSL     bool

	// Cache
	RedisAddr         string
	RedisPassword     string
	DashboardCacheTTL time.Duration

	// Events
	KafkaBrokers []string
	KafkaTopic   string

	// Tracing
	OTLPEndpoint    string
	OTELServiceName string

	// Import
	StravaAPIBaseURL    string
	ImportInterval      time.Duration
	ImportMaxConcurrent int
	ImportTimeout       time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigins []string
}

// LoadDotEnv はカレントディレクトリの.env.localと.envを環境変数に読み込む。
// ファイルが存在しない場合は何もしない。既に設定されている環境変数は上書きしない。
func LoadDotEnv() {
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		_ = godotenv.Load(name)
	}
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 20)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogSubmit = getEnvInt("RATE_LIMIT_LOG_SUBMIT", 30)

	tz := getEnvString("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}
	cfg.Location = loc

	cfg.CutoffHour = getEnvInt("CUTOFF_HOUR", 4)
	if cfg.CutoffHour < 0 || cfg.CutoffHour > 23 {
		return nil, fmt.Errorf("CUTOFF_HOUR must be between 0 and 23: %d", cfg.CutoffHour)
	}

	cfg.WeekAlignment = getEnvString("WEEK_ALIGNMENT", "rolling")
	if cfg.WeekAlignment != "rolling" && cfg.WeekAlignment != "monday" {
		return nil, fmt.Errorf("WEEK_ALIGNMENT must be rolling or monday: %q", cfg.WeekAlignment)
	}

	cfg.MainStreakDaily = getEnvList("MAIN_STREAK_DAILY", []string{"Sleep", "Anki"})
	cfg.MainStreakWeekly = getEnvString("MAIN_STREAK_WEEKLY", "Workout")
	cfg.HonorDaysOff = getEnvBool("HONOR_DAYS_OFF", false)
	cfg.LeaderboardSize = getEnvInt("LEADERBOARD_SIZE", 10)

	cfg.RequireProof = getEnvBool("REQUIRE_PROOF", false)
	cfg.ActivityCatalogPath = getEnvString("ACTIVITY_CATALOG_PATH", "")

	cfg.UploadDir = getEnvString("UPLOAD_DIR", "uploads")
	cfg.ProofMaxSize = getEnvInt64("PROOF_MAX_SIZE", 5242880)
	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.S3AccessKey = getEnvString("S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnvString("S3_SECRET_KEY", "")
	cfg.S3Bucket = getEnvString("S3_BUCKET", "habits-proofs")
	cfg.S3UseSSL = getEnvBool("S3_USE_SSL", false)

	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.DashboardCacheTTL = getEnvDuration("DASHBOARD_CACHE_TTL", 24*time.Hour)

	cfg.KafkaBrokers = getEnvList("KAFKA_BROKERS", nil)
	cfg.KafkaTopic = getEnvString("KAFKA_TOPIC", "habits.events")

	cfg.OTLPEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.OTELServiceName = getEnvString("OTEL_SERVICE_NAME", "habits")

	cfg.StravaAPIBaseURL = getEnvString("STRAVA_API_BASE_URL", "https://www.strava.com/api/v3")
	cfg.ImportInterval = getEnvDuration("IMPORT_INTERVAL", time.Hour)
	cfg.ImportMaxConcurrent = getEnvInt("IMPORT_MAX_CONCURRENT", 4)
	cfg.ImportTimeout = getEnvDuration("IMPORT_TIMEOUT", 15*time.Second)

	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"})

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数を空要素を除いたスライスとして返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
