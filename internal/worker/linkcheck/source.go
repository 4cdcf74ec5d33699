package linkcheck

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/schemebot/internal/model"
)

// Link は確認対象のリンク1件を表す。
type Link struct {
	Source string // "catalog" または "portal"
	Name   string
	URL    string
}

// Source は確認対象リンクの供給元インターフェース。
type Source interface {
	Links(ctx context.Context) ([]Link, error)
}

// SchemeCatalog はカタログの読み取りインターフェース。
type SchemeCatalog interface {
	All() []model.SchemeRecord
}

// SchemeLister はポータルスキームの一覧取得インターフェース。
type SchemeLister interface {
	List(ctx context.Context) ([]*model.Scheme, error)
}

type catalogSource struct {
	catalog SchemeCatalog
}

// NewCatalogSource は静的カタログのリンクを供給するSourceを返す。
func NewCatalogSource(c SchemeCatalog) Source {
	return &catalogSource{catalog: c}
}

func (s *catalogSource) Links(ctx context.Context) ([]Link, error) {
	var links []Link
	for _, r := range s.catalog.All() {
		if strings.TrimSpace(r.Link) == "" {
			continue
		}
		links = append(links, Link{Source: "catalog", Name: r.Name, URL: r.Link})
	}
	return links, nil
}

type portalSource struct {
	schemes SchemeLister
}

// NewPortalSource は管理者が登録したスキームのリンクを供給するSourceを返す。
func NewPortalSource(schemes SchemeLister) Source {
	return &portalSource{schemes: schemes}
}

func (s *portalSource) Links(ctx context.Context) ([]Link, error) {
	schemes, err := s.schemes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list portal schemes: %w", err)
	}
	var links []Link
	for _, sc := range schemes {
		if strings.TrimSpace(sc.Link) == "" {
			continue
		}
		links = append(links, Link{Source: "portal", Name: sc.Name, URL: sc.Link})
	}
	return links, nil
}
