package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/hitoshi/schemebot/internal/model"
	"gopkg.in/yaml.v3"
)

//go:embed schemes.yaml
var defaultCatalog []byte

// LoadError はカタログ内の特定スキームの不備を表す。
type LoadError struct {
	Index  int
	Name   string
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *LoadError) Error() string {
	return fmt.Sprintf("catalog entry %d (%q): %s", e.Index, e.Name, e.Reason)
}

// rawCatalog はYAMLファイルのトップレベル構造。
type rawCatalog struct {
	Schemes []rawScheme `yaml:"schemes"`
}

type rawScheme struct {
	Name             string       `yaml:"name"`
	Category         string       `yaml:"category"`
	ApplicationSteps stringOrList `yaml:"application_steps"`
	Benefits         string       `yaml:"benefits"`
	Deadline         string       `yaml:"deadline"`
	Link             string       `yaml:"link"`
	Eligibility      rawPredicate `yaml:"eligibility"`
}

type rawPredicate struct {
	MinAge     *int         `yaml:"min_age"`
	MaxAge     *int         `yaml:"max_age"`
	MaxIncome  *int64       `yaml:"max_income"`
	Occupation stringOrList `yaml:"occupation"`
	Gender     stringOrList `yaml:"gender"`
	State      string       `yaml:"state"`
	Category   stringOrList `yaml:"category"`
}

// stringOrList は単一の文字列と文字列リストのどちらの表記も受け付ける。
type stringOrList []string

// UnmarshalYAML はスカラーを要素1のリストとして取り込む。
func (s *stringOrList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = stringOrList{v}
	case yaml.SequenceNode:
		var v []string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = v
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
	return nil
}

// LoadDefault はバイナリに埋め込まれた既定カタログを読み込む。
func LoadDefault() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// LoadFile は指定パスのYAMLファイルからカタログを読み込む。
// pathが空の場合は既定カタログを返す。
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return LoadDefault()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load はYAMLを読み込み、条件フィールドを正規化してCatalogを生成する。
// 未知のキーを含む場合はエラーを返す。
func Load(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var raw rawCatalog
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("catalog is empty")
		}
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if len(raw.Schemes) == 0 {
		return nil, fmt.Errorf("catalog contains no schemes")
	}

	schemes := make([]model.SchemeRecord, 0, len(raw.Schemes))
	for _, rs := range raw.Schemes {
		schemes = append(schemes, rs.normalize())
	}
	return New(schemes)
}

// normalize はYAML表現をドメインモデルに変換する。
// 集合フィールドは小文字化され、州名はトリムされる。
func (rs rawScheme) normalize() model.SchemeRecord {
	steps := make([]string, 0, len(rs.ApplicationSteps))
	for _, step := range rs.ApplicationSteps {
		if s := strings.TrimSpace(step); s != "" {
			steps = append(steps, s)
		}
	}
	return model.SchemeRecord{
		Name:             strings.TrimSpace(rs.Name),
		Category:         strings.TrimSpace(rs.Category),
		ApplicationSteps: steps,
		Benefits:         strings.TrimSpace(rs.Benefits),
		Deadline:         strings.TrimSpace(rs.Deadline),
		Link:             strings.TrimSpace(rs.Link),
		Eligibility: model.EligibilityPredicate{
			MinAge:     rs.Eligibility.MinAge,
			MaxAge:     rs.Eligibility.MaxAge,
			MaxIncome:  rs.Eligibility.MaxIncome,
			Occupation: model.NewValueSet(rs.Eligibility.Occupation...),
			Gender:     model.NewValueSet(rs.Eligibility.Gender...),
			State:      strings.TrimSpace(rs.Eligibility.State),
			Category:   model.NewValueSet(rs.Eligibility.Category...),
		},
	}
}

// validate はスキーム単体の整合性を検証する。
func validate(i int, s model.SchemeRecord) error {
	fail := func(reason string) error {
		return &LoadError{Index: i, Name: s.Name, Reason: reason}
	}

	if s.Name == "" {
		return fail("name is required")
	}
	p := s.Eligibility
	if p.MinAge != nil && *p.MinAge < 0 {
		return fail("min_age must not be negative")
	}
	if p.MaxAge != nil && *p.MaxAge < 0 {
		return fail("max_age must not be negative")
	}
	if p.MinAge != nil && p.MaxAge != nil && *p.MinAge > *p.MaxAge {
		return fail("min_age is greater than max_age")
	}
	if p.MaxIncome != nil && *p.MaxIncome < 0 {
		return fail("max_income must not be negative")
	}
	if s.Link != "" {
		u, err := url.Parse(s.Link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fail("link must be an absolute http(s) URL")
		}
	}
	return nil
}
