package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/schemebot/internal/model"
	"github.com/lib/pq"
)

// PostgresApplicationRepo はPostgreSQLを使用した申請リポジトリ。
type PostgresApplicationRepo struct {
	db *sql.DB
}

// NewPostgresApplicationRepo はPostgresApplicationRepoを生成する。
func NewPostgresApplicationRepo(db *sql.DB) *PostgresApplicationRepo {
	return &PostgresApplicationRepo{db: db}
}

const applicationColumns = `a.id, a.user_id, a.scheme_id, a.answers, a.documents, a.status, a.applied_at, a.reviewed_at`

func scanApplication(row rowScanner, extra ...any) (*model.Application, error) {
	app := &model.Application{}
	var reviewedAt sql.NullTime
	dest := []any{
		&app.ID, &app.UserID, &app.SchemeID, &app.Answers,
		pq.Array(&app.Documents), &app.Status, &app.AppliedAt, &reviewedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		app.ReviewedAt = &t
	}
	return app, nil
}

// Create は申請を作成する。IDと申請日時はappに書き戻す。
func (r *PostgresApplicationRepo) Create(ctx context.Context, app *model.Application) error {
	status := app.Status
	if status == "" {
		status = model.ApplicationPending
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO applications (user_id, scheme_id, answers, documents, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, status, applied_at`,
		app.UserID, app.SchemeID, app.Answers, pq.Array(nonNil(app.Documents)), status,
	).Scan(&app.ID, &app.Status, &app.AppliedAt)
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

// FindByID は指定IDの申請を取得する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindByID(ctx context.Context, id string) (*model.Application, error) {
	app, err := scanApplication(r.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications a WHERE a.id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find application by ID: %w", err)
	}
	return app, nil
}

// ListByUserID はユーザーの申請をスキーム名付きで新しい順に返す。
func (r *PostgresApplicationRepo) ListByUserID(ctx context.Context, userID string) ([]ApplicationWithScheme, error) {
	return r.list(ctx,
		`SELECT `+applicationColumns+`, s.name, u.name, u.email
		 FROM applications a
		 JOIN schemes s ON s.id = a.scheme_id
		 JOIN users u ON u.id = a.user_id
		 WHERE a.user_id = $1
		 ORDER BY a.applied_at DESC`,
		userID,
	)
}

// ListAll は全申請をスキーム名と申請者情報付きで新しい順に返す。
func (r *PostgresApplicationRepo) ListAll(ctx context.Context) ([]ApplicationWithScheme, error) {
	return r.list(ctx,
		`SELECT `+applicationColumns+`, s.name, u.name, u.email
		 FROM applications a
		 JOIN schemes s ON s.id = a.scheme_id
		 JOIN users u ON u.id = a.user_id
		 ORDER BY a.applied_at DESC`,
	)
}

func (r *PostgresApplicationRepo) list(ctx context.Context, query string, args ...any) ([]ApplicationWithScheme, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var result []ApplicationWithScheme
	for rows.Next() {
		var aws ApplicationWithScheme
		app, err := scanApplication(rows, &aws.SchemeName, &aws.UserName, &aws.UserEmail)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application row: %w", err)
		}
		aws.Application = *app
		result = append(result, aws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}
	return result, nil
}

// UpdateStatus は審査状態と審査日時を更新する。
func (r *PostgresApplicationRepo) UpdateStatus(ctx context.Context, id string, status model.ApplicationStatus, reviewedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE applications SET status = $2, reviewed_at = $3 WHERE id = $1`,
		id, status, reviewedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update application status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("application %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteRejectedBefore はcutoffより前に却下された申請を削除し、削除した申請を返す。
// 呼び出し側は返された申請の添付ファイルを削除する。
func (r *PostgresApplicationRepo) DeleteRejectedBefore(ctx context.Context, cutoff time.Time) ([]*model.Application, error) {
	rows, err := r.db.QueryContext(ctx,
		`DELETE FROM applications a
		 WHERE a.status = 'rejected' AND a.reviewed_at < $1
		 RETURNING `+applicationColumns,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to delete rejected applications: %w", err)
	}
	defer rows.Close()

	var deleted []*model.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deleted application: %w", err)
		}
		deleted = append(deleted, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deleted applications: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ ApplicationRepository = (*PostgresApplicationRepo)(nil)
