// Package cli はAPIサーバーと同じサービス層を使うテキストメニュー形式のCLIを提供する。
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/habits/internal/activity"
	"github.com/hitoshi/habits/internal/catalog"
	"github.com/hitoshi/habits/internal/model"
	"github.com/hitoshi/habits/internal/streak"
)

// AccountService はCLI利用者のアカウントを用意する。
type AccountService interface {
	EnsureLocalUser(ctx context.Context, email, name string) (*model.User, bool, error)
}

// GoalService は習慣（目標）の参照と登録を行う。
type GoalService interface {
	List(ctx context.Context, userID string) ([]model.Goal, error)
	SetTarget(ctx context.Context, userID, activity string, target float64, unit string) (*model.Goal, error)
}

// LogService は記録を作成する。
type LogService interface {
	CreateLog(ctx context.Context, userID string, in activity.CreateLogInput) (*model.Log, error)
}

// LogLister はユーザーの全記録を返す。
type LogLister interface {
	ListByUser(ctx context.Context, userID string) ([]*model.Log, error)
}

// SocialService はフォロー関係を扱う。
type SocialService interface {
	ListUsers(ctx context.Context, viewerID string) ([]model.UserWithFollowState, error)
	Follow(ctx context.Context, followerID, followedID string) error
}

// Deps はCLIが利用するサービス群。
type Deps struct {
	Accounts AccountService
	Goals    GoalService
	Logs     LogService
	History  LogLister
	Social   SocialService
}

// Config はCLIの設定。Catalogがnilなら既定のカタログで集計単位を判定する。
type Config struct {
	CutoffHour int
	Location   *time.Location
	Catalog    *catalog.Catalog
}

// errInputClosed は入力が終端に達したことを示す。
var errInputClosed = errors.New("input closed")

// CLI はテキストメニューの対話ループ。
type CLI struct {
	in     *bufio.Scanner
	out    io.Writer
	deps   Deps
	config Config
}

// New はCLIを生成する。
func New(in io.Reader, out io.Writer, deps Deps, config Config) *CLI {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Catalog == nil {
		config.Catalog = catalog.Default()
	}
	return &CLI{
		in:     bufio.NewScanner(in),
		out:    out,
		deps:   deps,
		config: config,
	}
}

// Run は利用者を特定したうえでメニューループを実行する。
// 「終了」を選ぶか入力が終端に達すると nil を返す。
func (c *CLI) Run(ctx context.Context) error {
	c.println("Habits Tracker CLI へようこそ")
	c.println("")

	user, err := c.identify(ctx)
	if err != nil {
		if errors.Is(err, errInputClosed) {
			return nil
		}
		return err
	}

	err = c.menu(ctx, user)
	if errors.Is(err, errInputClosed) {
		c.println("")
		c.println("さようなら！")
		return nil
	}
	return err
}

func (c *CLI) identify(ctx context.Context) (*model.User, error) {
	for {
		email, err := c.prompt("メールアドレス: ")
		if err != nil {
			return nil, err
		}
		name, err := c.prompt("表示名: ")
		if err != nil {
			return nil, err
		}

		user, created, err := c.deps.Accounts.EnsureLocalUser(ctx, email, name)
		if err != nil {
			if msg, ok := userMessage(err); ok {
				c.println(msg)
				continue
			}
			return nil, fmt.Errorf("ユーザーの準備に失敗しました: %w", err)
		}
		if created {
			c.printf("ユーザー「%s」を作成しました。\n", user.Name)
		} else {
			c.printf("おかえりなさい、%sさん。\n", user.Name)
		}
		return user, nil
	}
}

func (c *CLI) menu(ctx context.Context, user *model.User) error {
	for {
		c.println("")
		c.println("メニュー:")
		c.println("1) 習慣を追加")
		c.println("2) 今日の記録")
		c.println("3) 過去の記録")
		c.println("4) フレンド")
		c.println("5) 終了")

		choice, err := c.prompt("番号を選択: ")
		if err != nil {
			return err
		}

		switch choice {
		case "1":
			err = c.addHabit(ctx, user.ID)
		case "2":
			err = c.logToday(ctx, user.ID)
		case "3":
			err = c.pastLogs(ctx, user.ID)
		case "4":
			err = c.friends(ctx, user.ID)
		case "5":
			return nil
		default:
			c.println("無効な選択です。")
		}
		if err != nil {
			if msg, ok := userMessage(err); ok {
				c.println(msg)
				continue
			}
			return err
		}
	}
}

func (c *CLI) addHabit(ctx context.Context, userID string) error {
	name, err := c.prompt("習慣の名前: ")
	if err != nil {
		return err
	}
	label := "1日の目標"
	if c.config.Catalog.PeriodOf(name) == streak.PeriodWeekly {
		label = "1週間の目標"
	}
	raw, err := c.prompt(label + "（数値）: ")
	if err != nil {
		return err
	}
	target, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.println("目標は数値で入力してください。")
		return nil
	}

	goal, err := c.deps.Goals.SetTarget(ctx, userID, name, target, "")
	if err != nil {
		return err
	}
	c.printf("習慣「%s」を目標 %s で追加しました。\n", goal.Activity, formatValue(goal.Target))
	return nil
}

func (c *CLI) logToday(ctx context.Context, userID string) error {
	goals, err := c.deps.Goals.List(ctx, userID)
	if err != nil {
		return err
	}

	var active []model.Goal
	for _, g := range goals {
		if g.Target > 0 {
			active = append(active, g)
		}
	}
	if len(active) == 0 {
		c.println("習慣がありません。先に追加してください。")
		return nil
	}

	saved := 0
	for _, g := range active {
		raw, err := c.prompt(fmt.Sprintf("%s（目標 %s）: ", g.Activity, formatValue(g.Target)))
		if err != nil {
			return err
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.println("数値ではないためスキップします。")
			continue
		}
		if _, err := c.deps.Logs.CreateLog(ctx, userID, activity.CreateLogInput{
			Activity: g.Activity,
			Value:    value,
		}); err != nil {
			if msg, ok := userMessage(err); ok {
				c.println(msg)
				continue
			}
			return err
		}
		saved++
	}
	c.printf("今日の記録を%d件保存しました。\n", saved)
	return nil
}

func (c *CLI) pastLogs(ctx context.Context, userID string) error {
	logs, err := c.deps.History.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		c.println("まだ記録がありません。")
		return nil
	}

	byDate := make(map[streak.Date][]*model.Log)
	for _, l := range logs {
		d := streak.EffectiveDate(l.Timestamp, c.config.CutoffHour, c.config.Location)
		byDate[d] = append(byDate[d], l)
	}
	dates := make([]streak.Date, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[j].Before(dates[i]) })

	for _, d := range dates {
		c.println("")
		c.printf("%s:\n", d)
		for _, l := range byDate[d] {
			c.printf("  %s: %s\n", l.Activity, formatValue(l.Value))
		}
	}
	return nil
}

func (c *CLI) friends(ctx context.Context, userID string) error {
	who, err := c.prompt("フォローするユーザーのIDまたは表示名: ")
	if err != nil {
		return err
	}

	users, err := c.deps.Social.ListUsers(ctx, userID)
	if err != nil {
		return err
	}
	target := findUser(users, who)
	if target == nil {
		c.println("ユーザーが見つかりません。")
		return nil
	}

	if err := c.deps.Social.Follow(ctx, userID, target.ID); err != nil {
		return err
	}
	c.printf("%sさんをフォローしました。\n", target.Name)
	target.Following = true

	var names []string
	for _, u := range users {
		if u.Following {
			names = append(names, u.Name)
		}
	}
	if len(names) > 0 {
		c.printf("フォロー中: %s\n", strings.Join(names, ", "))
	}
	return nil
}

// findUser はIDの完全一致、なければ表示名の大文字小文字を無視した一致で探す。
func findUser(users []model.UserWithFollowState, query string) *model.UserWithFollowState {
	for i := range users {
		if users[i].ID == query {
			return &users[i]
		}
	}
	for i := range users {
		if strings.EqualFold(users[i].Name, query) {
			return &users[i]
		}
	}
	return nil
}

// prompt は空でない1行を読むまで繰り返し問い合わせる。
func (c *CLI) prompt(label string) (string, error) {
	for {
		fmt.Fprint(c.out, label)
		if !c.in.Scan() {
			if err := c.in.Err(); err != nil {
				return "", fmt.Errorf("入力の読み込みに失敗しました: %w", err)
			}
			return "", errInputClosed
		}
		if line := strings.TrimSpace(c.in.Text()); line != "" {
			return line, nil
		}
	}
}

func (c *CLI) println(s string) {
	fmt.Fprintln(c.out, s)
}

func (c *CLI) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// userMessage は利用者に見せられるエラーであればそのメッセージを返す。
func userMessage(err error) (string, bool) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message, true
	}
	return "", false
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
