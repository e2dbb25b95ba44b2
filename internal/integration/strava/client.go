// Package strava はStrava APIからアクティビティを取得し、活動記録に変換する。
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL はStrava API v3のベースURL。
	DefaultBaseURL = "https://www.strava.com/api/v3"
	// perPage は1ページあたりの取得件数。
	perPage = 100
	// maxPages は1回の取得で辿る最大ページ数。
	maxPages = 10
)

// ErrUnauthorized はトークンが無効または失効している場合に返される。
var ErrUnauthorized = errors.New("strava token rejected")

// Activity はStravaのアクティビティ（必要な項目のみ）。
type Activity struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	SportType  string    `json:"sport_type"`
	StartDate  time.Time `json:"start_date"`
	MovingTime int       `json:"moving_time"` // 秒
	Distance   float64   `json:"distance"`    // メートル
}

// Client はStrava APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLが空の場合はDefaultBaseURLを使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// ListActivities はafter以降に開始したアクティビティを返す。
// afterがゼロ値の場合は全期間を対象とする。最大maxPagesページまで辿る。
func (c *Client) ListActivities(ctx context.Context, token string, after time.Time) ([]Activity, error) {
	var all []Activity
	for page := 1; page <= maxPages; page++ {
		batch, err := c.listPage(ctx, token, after, page)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < perPage {
			break
		}
	}
	return all, nil
}

func (c *Client) listPage(ctx context.Context, token string, after time.Time, page int) ([]Activity, error) {
	reqURL, err := url.Parse(c.baseURL + "/athlete/activities")
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}
	q := reqURL.Query()
	if !after.IsZero() {
		q.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "habits/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Strava APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("page", page),
		)
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		c.logger.Error("Strava APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.Int("page", page),
		)
		return nil, fmt.Errorf("Strava APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var activities []Activity
	if err := json.Unmarshal(body, &activities); err != nil {
		c.logger.Error("Strava APIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return activities, nil
}

// HabitActivity はStravaの種別を記録用の活動名に変換する。
// 対応しない種別の場合はfalseを返す。
func (a Activity) HabitActivity() (string, bool) {
	kind := a.SportType
	if kind == "" {
		kind = a.Type
	}
	switch kind {
	case "Run", "TrailRun", "VirtualRun":
		return "Running", true
	case "Ride", "VirtualRide", "EBikeRide", "GravelRide", "MountainBikeRide":
		return "Cycling", true
	case "Walk", "Hike":
		return "Walking", true
	default:
		return "", false
	}
}

// Minutes は移動時間を分で返す（小数第1位まで）。
func (a Activity) Minutes() float64 {
	return float64(a.MovingTime*10/60) / 10
}

// DistanceKM は距離をkmで返す。距離が無い場合はnil。
func (a Activity) DistanceKM() *float64 {
	if a.Distance <= 0 {
		return nil
	}
	km := float64(int64(a.Distance)) / 1000
	return &km
}

// ExternalID は重複取り込み防止に使う外部IDを返す。
func (a Activity) ExternalID() string {
	return "strava:" + strconv.FormatInt(a.ID, 10)
}
