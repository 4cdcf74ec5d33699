// Package catalog は福祉スキームの静的カタログを提供する。
//
// カタログは起動時に1回だけYAMLから読み込まれ、以降は変更されない。
// 複数のgoroutineからロックなしで参照できる。
package catalog

import (
	"strings"

	"github.com/hitoshi/schemebot/internal/model"
)

// Filter はカタログ一覧の絞り込み条件を表す。
type Filter string

const (
	// FilterAll は全スキームを対象とする。
	FilterAll Filter = "all"
	// FilterCentral は州条件を持たない中央政府スキームのみを対象とする。
	FilterCentral Filter = "central"
	// FilterRegion は設定された地域のスキームのみを対象とする。
	FilterRegion Filter = "region"
)

// ParseFilter は文字列をFilterに変換する。空文字列はFilterAllとして扱う。
func ParseFilter(s string) (Filter, error) {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterCentral:
		return FilterCentral, nil
	case FilterRegion:
		return FilterRegion, nil
	default:
		return "", model.NewInvalidFilterError(s)
	}
}

// Catalog は読み込み済みのスキーム一覧を保持する。
type Catalog struct {
	schemes []model.SchemeRecord
	byName  map[string]int
}

// New は検証済みのスキーム一覧からCatalogを生成する。
// 名前の重複や条件の矛盾がある場合はエラーを返す。
func New(schemes []model.SchemeRecord) (*Catalog, error) {
	c := &Catalog{
		schemes: make([]model.SchemeRecord, 0, len(schemes)),
		byName:  make(map[string]int, len(schemes)),
	}
	for i, s := range schemes {
		if err := validate(i, s); err != nil {
			return nil, err
		}
		key := nameKey(s.Name)
		if _, dup := c.byName[key]; dup {
			return nil, &LoadError{Index: i, Name: s.Name, Reason: "duplicate scheme name"}
		}
		c.byName[key] = len(c.schemes)
		c.schemes = append(c.schemes, s)
	}
	return c, nil
}

// Len は登録スキーム数を返す。
func (c *Catalog) Len() int {
	return len(c.schemes)
}

// All は全スキームを読み込み順で返す。
func (c *Catalog) All() []model.SchemeRecord {
	out := make([]model.SchemeRecord, len(c.schemes))
	copy(out, c.schemes)
	return out
}

// Where は条件を満たすスキームを読み込み順で返す。
func (c *Catalog) Where(pred func(model.SchemeRecord) bool) []model.SchemeRecord {
	var out []model.SchemeRecord
	for _, s := range c.schemes {
		if pred(s) {
			out = append(out, s)
		}
	}
	return out
}

// List はフィルタに応じたスキーム一覧を返す。
// 州条件を持つスキームを地域スキームとみなし、FilterRegionではregionと大文字小文字を区別せず一致するものだけを返す。
func (c *Catalog) List(filter Filter, region string) []model.SchemeRecord {
	switch filter {
	case FilterCentral:
		return c.Where(func(s model.SchemeRecord) bool {
			return !s.Eligibility.IsRegional()
		})
	case FilterRegion:
		return c.Where(func(s model.SchemeRecord) bool {
			return s.Eligibility.IsRegional() && strings.EqualFold(s.Eligibility.State, strings.TrimSpace(region))
		})
	default:
		return c.All()
	}
}

// Find は表示名でスキームを検索する。大文字小文字は区別しない。
func (c *Catalog) Find(name string) (model.SchemeRecord, bool) {
	i, ok := c.byName[nameKey(name)]
	if !ok {
		return model.SchemeRecord{}, false
	}
	return c.schemes[i], true
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
