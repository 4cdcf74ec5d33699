package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/schemebot/internal/model"
	"github.com/lib/pq"
)

// PostgresSchemeRepo はPostgreSQLを使用したスキームリポジトリ。
// 提出書類の一覧はTEXT[]カラムにpq.Arrayで読み書きする。
type PostgresSchemeRepo struct {
	db *sql.DB
}

// NewPostgresSchemeRepo はPostgresSchemeRepoを生成する。
func NewPostgresSchemeRepo(db *sql.DB) *PostgresSchemeRepo {
	return &PostgresSchemeRepo{db: db}
}

const schemeColumns = `id, name, description, eligibility, benefits, documents_required, link, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheme(row rowScanner) (*model.Scheme, error) {
	s := &model.Scheme{}
	err := row.Scan(
		&s.ID, &s.Name, &s.Description, &s.Eligibility, &s.Benefits,
		pq.Array(&s.DocumentsRequired), &s.Link, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// List は全スキームを作成日時の昇順で返す。
func (r *PostgresSchemeRepo) List(ctx context.Context) ([]*model.Scheme, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+schemeColumns+` FROM schemes ORDER BY created_at ASC, name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemes: %w", err)
	}
	defer rows.Close()

	var schemes []*model.Scheme
	for rows.Next() {
		s, err := scanScheme(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheme row: %w", err)
		}
		schemes = append(schemes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schemes: %w", err)
	}
	return schemes, nil
}

// FindByID は指定IDのスキームを取得する。見つからない場合はnilを返す。
func (r *PostgresSchemeRepo) FindByID(ctx context.Context, id string) (*model.Scheme, error) {
	s, err := scanScheme(r.db.QueryRowContext(ctx,
		`SELECT `+schemeColumns+` FROM schemes WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find scheme by ID: %w", err)
	}
	return s, nil
}

// Create はスキームを作成する。IDと作成・更新日時はschemeに書き戻す。
func (r *PostgresSchemeRepo) Create(ctx context.Context, scheme *model.Scheme) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO schemes (name, description, eligibility, benefits, documents_required, link)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		scheme.Name, scheme.Description, scheme.Eligibility, scheme.Benefits,
		pq.Array(nonNil(scheme.DocumentsRequired)), scheme.Link,
	).Scan(&scheme.ID, &scheme.CreatedAt, &scheme.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert scheme: %w", err)
	}
	return nil
}

// Update はスキームを上書き更新する。updated_atはDB側で現在時刻に更新する。
func (r *PostgresSchemeRepo) Update(ctx context.Context, scheme *model.Scheme) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE schemes
		 SET name = $2, description = $3, eligibility = $4, benefits = $5,
		     documents_required = $6, link = $7, updated_at = now()
		 WHERE id = $1
		 RETURNING created_at, updated_at`,
		scheme.ID, scheme.Name, scheme.Description, scheme.Eligibility, scheme.Benefits,
		pq.Array(nonNil(scheme.DocumentsRequired)), scheme.Link,
	).Scan(&scheme.CreatedAt, &scheme.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("scheme %s: %w", scheme.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update scheme: %w", err)
	}
	return nil
}

// Delete はスキームを削除する。
func (r *PostgresSchemeRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schemes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scheme: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("scheme %s: %w", id, ErrNotFound)
	}
	return nil
}

// nonNil はNOT NULL配列カラムに渡すためnilスライスを空スライスに変換する。
func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// compile-time interface check
var _ SchemeRepository = (*PostgresSchemeRepo)(nil)
