// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/schemebot/internal/model"
)

var (
	// ErrNotFound は更新・削除対象の行が存在しないことを表す。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate は一意制約違反を表す。
	ErrDuplicate = errors.New("duplicate record")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error
}

// SchemeRepository はポータルのスキームデータの永続化インターフェース。
type SchemeRepository interface {
	// List は全スキームを作成日時の昇順で返す。
	List(ctx context.Context) ([]*model.Scheme, error)

	// FindByID は指定IDのスキームを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Scheme, error)

	// Create はスキームを作成する。
	Create(ctx context.Context, scheme *model.Scheme) error

	// Update はスキームを上書き更新する。存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, scheme *model.Scheme) error

	// Delete はスキームを削除する。関連する申請はCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// ApplicationRepository は申請データの永続化インターフェース。
type ApplicationRepository interface {
	// Create は申請を作成する。
	Create(ctx context.Context, app *model.Application) error

	// FindByID は指定IDの申請を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Application, error)

	// ListByUserID はユーザーの申請をスキーム名付きで新しい順に返す。
	ListByUserID(ctx context.Context, userID string) ([]ApplicationWithScheme, error)

	// ListAll は全申請をスキーム名と申請者情報付きで新しい順に返す。
	ListAll(ctx context.Context) ([]ApplicationWithScheme, error)

	// UpdateStatus は審査状態と審査日時を更新する。存在しない場合はErrNotFoundを返す。
	UpdateStatus(ctx context.Context, id string, status model.ApplicationStatus, reviewedAt time.Time) error

	// DeleteRejectedBefore はcutoffより前に却下された申請を削除し、削除した申請を返す。
	DeleteRejectedBefore(ctx context.Context, cutoff time.Time) ([]*model.Application, error)
}

// ApplicationWithScheme は申請とスキーム名、申請者情報を結合した構造体。
type ApplicationWithScheme struct {
	model.Application
	SchemeName string
	UserName   string
	UserEmail  string
}
