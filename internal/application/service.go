// Package application はスキームへの申請と書類アップロード、管理者による審査を提供する。
package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/schemebot/internal/model"
	"github.com/hitoshi/schemebot/internal/repository"
)

// MaxUploadBytes は申請リクエスト全体のサイズ上限（16MiB）。
const MaxUploadBytes int64 = 16 << 20

// Storage はアップロード書類の保存先インターフェース。
type Storage interface {
	Save(filename string, r io.Reader) (string, error)
	Remove(name string) error
}

// SubmitInput は申請の入力。
type SubmitInput struct {
	SchemeID string
	Answers  string
	Files    []*multipart.FileHeader
}

// Service は申請に関するビジネスロジックを提供する。
type Service struct {
	apps    repository.ApplicationRepository
	schemes repository.SchemeRepository
	storage Storage
	logger  *slog.Logger
	now     func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	apps repository.ApplicationRepository,
	schemes repository.SchemeRepository,
	storage Storage,
	logger *slog.Logger,
) *Service {
	return &Service{
		apps:    apps,
		schemes: schemes,
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// Submit は書類を保存して申請を作成する。書類は1件以上必須。
// 途中で失敗した場合は保存済みの書類を削除する。
func (s *Service) Submit(ctx context.Context, userID string, in SubmitInput) (*model.Application, error) {
	schemeID := strings.TrimSpace(in.SchemeID)
	if schemeID == "" {
		return nil, model.NewMissingFieldsError([]string{"schemeId"})
	}
	if len(in.Files) == 0 {
		return nil, model.NewNoDocumentsError()
	}
	if _, err := uuid.Parse(schemeID); err != nil {
		return nil, model.NewSchemeNotFoundError(schemeID)
	}
	scheme, err := s.schemes.FindByID(ctx, schemeID)
	if err != nil {
		return nil, fmt.Errorf("failed to find scheme: %w", err)
	}
	if scheme == nil {
		return nil, model.NewSchemeNotFoundError(schemeID)
	}

	saved := make([]string, 0, len(in.Files))
	for _, fh := range in.Files {
		name, err := s.save(fh)
		if err != nil {
			s.discard(saved)
			return nil, err
		}
		saved = append(saved, name)
	}

	app := &model.Application{
		UserID:    userID,
		SchemeID:  schemeID,
		Answers:   strings.TrimSpace(in.Answers),
		Documents: saved,
		Status:    model.ApplicationPending,
	}
	if err := s.apps.Create(ctx, app); err != nil {
		s.discard(saved)
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	s.logger.Info("application submitted",
		slog.String("application_id", app.ID),
		slog.String("scheme_id", schemeID),
		slog.Int("documents", len(saved)),
	)
	return app, nil
}

// ListOwn はユーザー自身の申請を新しい順に返す。
func (s *Service) ListOwn(ctx context.Context, userID string) ([]repository.ApplicationWithScheme, error) {
	apps, err := s.apps.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	if apps == nil {
		apps = []repository.ApplicationWithScheme{}
	}
	return apps, nil
}

// ListAll は全ユーザーの申請を新しい順に返す。
func (s *Service) ListAll(ctx context.Context) ([]repository.ApplicationWithScheme, error) {
	apps, err := s.apps.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	if apps == nil {
		apps = []repository.ApplicationWithScheme{}
	}
	return apps, nil
}

// UpdateStatus は審査状態を更新し、審査日時を現在時刻にする。
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*model.Application, error) {
	st, ok := model.ParseApplicationStatus(strings.ToLower(strings.TrimSpace(status)))
	if !ok {
		return nil, model.NewInvalidStatusError(status)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewApplicationNotFoundError(id)
	}

	if err := s.apps.UpdateStatus(ctx, id, st, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewApplicationNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to update application status: %w", err)
	}

	app, err := s.apps.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find application: %w", err)
	}
	if app == nil {
		return nil, model.NewApplicationNotFoundError(id)
	}

	s.logger.Info("application reviewed",
		slog.String("application_id", id),
		slog.String("status", string(st)),
	)
	return app, nil
}

func (s *Service) save(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload %q: %w", fh.Filename, err)
	}
	defer f.Close()

	name, err := s.storage.Save(fh.Filename, f)
	if err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return name, nil
}

func (s *Service) discard(names []string) {
	for _, name := range names {
		if err := s.storage.Remove(name); err != nil {
			s.logger.Warn("failed to remove orphaned upload",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
		}
	}
}
