// Package scheme はポータルで管理するスキームのドメインロジックを提供する。
package scheme

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hitoshi/schemebot/internal/model"
	"github.com/hitoshi/schemebot/internal/repository"
	"github.com/hitoshi/schemebot/internal/security"
)

// URLValidator はリンクURLの安全性検証インターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Input はスキームの作成・更新の入力。
// DocumentsRequiredがnilの場合は項目なしとして扱う。
type Input struct {
	Name              string
	Description       string
	Eligibility       string
	Benefits          string
	DocumentsRequired []string
	Link              string
}

// Service はスキーム管理のサービス層。
// 本文は許可タグのみ残してサニタイズし、リンクはSSRFガードで検証する。
type Service struct {
	repo      repository.SchemeRepository
	validator URLValidator
	rich      security.ContentSanitizerService
	plain     security.ContentSanitizerService
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	repo repository.SchemeRepository,
	validator URLValidator,
	rich security.ContentSanitizerService,
	plain security.ContentSanitizerService,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		validator: validator,
		rich:      rich,
		plain:     plain,
		logger:    logger,
	}
}

// List は全スキームを返す。
func (s *Service) List(ctx context.Context) ([]*model.Scheme, error) {
	schemes, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemes: %w", err)
	}
	if schemes == nil {
		schemes = []*model.Scheme{}
	}
	return schemes, nil
}

// Get は指定IDのスキームを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Scheme, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewSchemeNotFoundError(id)
	}
	scheme, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find scheme: %w", err)
	}
	if scheme == nil {
		return nil, model.NewSchemeNotFoundError(id)
	}
	return scheme, nil
}

// Create はスキームを作成する。
func (s *Service) Create(ctx context.Context, in Input) (*model.Scheme, error) {
	scheme, err := s.build(in)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, scheme); err != nil {
		return nil, fmt.Errorf("failed to create scheme: %w", err)
	}
	s.logger.Info("scheme created",
		slog.String("scheme_id", scheme.ID),
		slog.String("name", scheme.Name),
	)
	return scheme, nil
}

// Update はスキームを上書き更新する。
func (s *Service) Update(ctx context.Context, id string, in Input) (*model.Scheme, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewSchemeNotFoundError(id)
	}
	scheme, err := s.build(in)
	if err != nil {
		return nil, err
	}
	scheme.ID = id
	if err := s.repo.Update(ctx, scheme); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewSchemeNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to update scheme: %w", err)
	}
	s.logger.Info("scheme updated", slog.String("scheme_id", id))
	return scheme, nil
}

// Delete はスキームを削除する。関連する申請も削除される。
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.NewSchemeNotFoundError(id)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewSchemeNotFoundError(id)
		}
		return fmt.Errorf("failed to delete scheme: %w", err)
	}
	s.logger.Info("scheme deleted", slog.String("scheme_id", id))
	return nil
}

// build は入力を検証・サニタイズしてスキームを組み立てる。
func (s *Service) build(in Input) (*model.Scheme, error) {
	scheme := &model.Scheme{
		Name:        s.plain.Sanitize(in.Name),
		Description: strings.TrimSpace(s.rich.Sanitize(in.Description)),
		Eligibility: strings.TrimSpace(s.rich.Sanitize(in.Eligibility)),
		Benefits:    strings.TrimSpace(s.rich.Sanitize(in.Benefits)),
		Link:        strings.TrimSpace(in.Link),
	}
	if in.DocumentsRequired != nil {
		scheme.DocumentsRequired = make([]string, 0, len(in.DocumentsRequired))
		for _, d := range in.DocumentsRequired {
			if d = s.plain.Sanitize(d); d != "" {
				scheme.DocumentsRequired = append(scheme.DocumentsRequired, d)
			}
		}
	}

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", scheme.Name},
		{"description", scheme.Description},
		{"eligibility", scheme.Eligibility},
		{"benefits", scheme.Benefits},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if in.DocumentsRequired == nil {
		missing = append(missing, "documentsRequired")
	}
	if len(missing) > 0 {
		return nil, model.NewMissingFieldsError(missing)
	}

	if scheme.Link != "" {
		if err := s.validator.ValidateURL(scheme.Link); err != nil {
			if errors.Is(err, security.ErrBlockedDestination) {
				s.logger.Warn("scheme link blocked",
					slog.String("link", scheme.Link),
					slog.String("error", err.Error()),
				)
				return nil, model.NewSSRFBlockedError()
			}
			return nil, model.NewInvalidURLError(err.Error())
		}
	}
	return scheme, nil
}
