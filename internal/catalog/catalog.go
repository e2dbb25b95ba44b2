// Package catalog は記録可能な活動の一覧（集計単位・単位・初期目標）を提供する。
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/habits/internal/streak"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// Activity はカタログ上の1活動。
type Activity struct {
	Name          string        `yaml:"name" json:"name"`
	Period        streak.Period `yaml:"period" json:"period"`
	Unit          string        `yaml:"unit" json:"unit"`
	DefaultTarget float64       `yaml:"default_target" json:"default_target"`
}

type document struct {
	Activities []Activity `yaml:"activities"`
}

// Catalog は活動カタログ。生成後は読み取り専用。
type Catalog struct {
	activities []Activity
	byName     map[string]Activity
}

// Default は埋め込みのデフォルトカタログを返す。
func Default() *Catalog {
	c, err := Parse(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("invalid embedded catalog: %v", err))
	}
	return c
}

// Load はpathのYAMLからカタログを読み込む。pathが空の場合はデフォルトを返す。
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read activity catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse activity catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse はYAMLからカタログを構築する。
// 不明な集計単位はdailyとして扱い、名前の重複と空の名前はエラーにする。
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Activities) == 0 {
		return nil, fmt.Errorf("catalog has no activities")
	}

	c := &Catalog{byName: make(map[string]Activity, len(doc.Activities))}
	for _, a := range doc.Activities {
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			return nil, fmt.Errorf("activity name must not be empty")
		}
		if _, dup := c.byName[a.Name]; dup {
			return nil, fmt.Errorf("duplicate activity: %s", a.Name)
		}
		if a.Period != streak.PeriodWeekly {
			a.Period = streak.PeriodDaily
		}
		if a.DefaultTarget < 0 {
			a.DefaultTarget = 0
		}
		c.activities = append(c.activities, a)
		c.byName[a.Name] = a
	}
	return c, nil
}

// All はカタログの全活動を定義順で返す。
func (c *Catalog) All() []Activity {
	out := make([]Activity, len(c.activities))
	copy(out, c.activities)
	return out
}

// Lookup は名前で活動を検索する。
func (c *Catalog) Lookup(name string) (Activity, bool) {
	a, ok := c.byName[name]
	return a, ok
}

// PeriodOf は活動の集計単位を返す。カタログに無い活動（カスタム習慣）はdaily。
func (c *Catalog) PeriodOf(name string) streak.Period {
	if a, ok := c.byName[name]; ok {
		return a.Period
	}
	return streak.PeriodDaily
}

// UnitOf は活動の単位を返す。カタログに無い活動は空文字列。
func (c *Catalog) UnitOf(name string) string {
	return c.byName[name].Unit
}
