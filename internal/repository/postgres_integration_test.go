//go:build integration

package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hitoshi/schemebot/internal/database"
	"github.com/hitoshi/schemebot/internal/model"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// startPostgres はPostgreSQLコンテナを起動し、マイグレーション済みの接続を返す。
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("schemebot"),
		postgres.WithUsername("schemebot"),
		postgres.WithPassword("schemebot"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}
	if _, err := database.RunMigrations(dsn); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	db, err := database.Open(dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedUser(t *testing.T, repo *PostgresUserRepo, email string) *model.User {
	t.Helper()
	u := &model.User{
		Name:         "Asha",
		Email:        email,
		PasswordHash: "$2a$10$hash",
		Aadhaar:      "123412341234",
		Phone:        "9876543210",
		Role:         model.RoleUser,
	}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create(user) error = %v", err)
	}
	return u
}

func TestPostgresRepos_Integration(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	users := NewPostgresUserRepo(db)
	schemes := NewPostgresSchemeRepo(db)
	apps := NewPostgresApplicationRepo(db)

	t.Run("users", func(t *testing.T) {
		u := seedUser(t, users, "asha@example.com")
		if u.ID == "" || u.CreatedAt.IsZero() {
			t.Fatalf("Create did not populate ID/CreatedAt: %+v", u)
		}

		got, err := users.FindByEmail(ctx, "asha@example.com")
		if err != nil {
			t.Fatalf("FindByEmail() error = %v", err)
		}
		if diff := cmp.Diff(u.ID, got.ID); diff != "" {
			t.Errorf("FindByEmail() ID mismatch (-want +got):\n%s", diff)
		}

		missing, err := users.FindByID(ctx, "00000000-0000-0000-0000-000000000000")
		if err != nil || missing != nil {
			t.Errorf("FindByID(missing) = %v, %v; want nil, nil", missing, err)
		}

		dup := *u
		if err := users.Create(ctx, &dup); !errors.Is(err, ErrDuplicate) {
			t.Errorf("Create(duplicate) error = %v, want ErrDuplicate", err)
		}
	})

	t.Run("schemes and applications", func(t *testing.T) {
		u := seedUser(t, users, "ravi@example.com")

		s := &model.Scheme{
			Name:              "PM-KISAN",
			Description:       "Income support for farmers.",
			Eligibility:       "Small and marginal farmers.",
			Benefits:          "Rs 6,000 per year.",
			DocumentsRequired: []string{"Aadhaar", "Land records"},
			Link:              "https://pmkisan.gov.in/",
		}
		if err := schemes.Create(ctx, s); err != nil {
			t.Fatalf("Create(scheme) error = %v", err)
		}

		s.Benefits = "Rs 6,000 per year in three instalments."
		s.DocumentsRequired = nil
		if err := schemes.Update(ctx, s); err != nil {
			t.Fatalf("Update(scheme) error = %v", err)
		}
		got, err := schemes.FindByID(ctx, s.ID)
		if err != nil || got == nil {
			t.Fatalf("FindByID(scheme) = %v, %v", got, err)
		}
		if got.Benefits != s.Benefits || len(got.DocumentsRequired) != 0 {
			t.Errorf("updated scheme = %+v", got)
		}

		missing := &model.Scheme{ID: "00000000-0000-0000-0000-000000000000"}
		if err := schemes.Update(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
		}

		app := &model.Application{
			UserID:    u.ID,
			SchemeID:  s.ID,
			Answers:   `{"land":"2 acres"}`,
			Documents: []string{"abc_aadhaar.pdf"},
		}
		if err := apps.Create(ctx, app); err != nil {
			t.Fatalf("Create(application) error = %v", err)
		}
		if app.Status != model.ApplicationPending {
			t.Errorf("Status = %q, want pending", app.Status)
		}

		own, err := apps.ListByUserID(ctx, u.ID)
		if err != nil {
			t.Fatalf("ListByUserID() error = %v", err)
		}
		if len(own) != 1 || own[0].SchemeName != "PM-KISAN" || own[0].UserEmail != "ravi@example.com" {
			t.Errorf("ListByUserID() = %+v", own)
		}
		if diff := cmp.Diff([]string{"abc_aadhaar.pdf"}, own[0].Documents); diff != "" {
			t.Errorf("documents mismatch (-want +got):\n%s", diff)
		}

		reviewed := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Microsecond)
		if err := apps.UpdateStatus(ctx, app.ID, model.ApplicationRejected, reviewed); err != nil {
			t.Fatalf("UpdateStatus() error = %v", err)
		}
		found, err := apps.FindByID(ctx, app.ID)
		if err != nil || found == nil || found.ReviewedAt == nil {
			t.Fatalf("FindByID(application) = %+v, %v", found, err)
		}
		if !found.ReviewedAt.Equal(reviewed) {
			t.Errorf("ReviewedAt = %v, want %v", found.ReviewedAt, reviewed)
		}

		kept, err := apps.DeleteRejectedBefore(ctx, reviewed.Add(-time.Hour))
		if err != nil || len(kept) != 0 {
			t.Errorf("DeleteRejectedBefore(earlier) = %v, %v; want none", kept, err)
		}
		deleted, err := apps.DeleteRejectedBefore(ctx, time.Now())
		if err != nil {
			t.Fatalf("DeleteRejectedBefore() error = %v", err)
		}
		if len(deleted) != 1 || deleted[0].ID != app.ID {
			t.Errorf("DeleteRejectedBefore() = %+v", deleted)
		}

		all, err := apps.ListAll(ctx)
		if err != nil || len(all) != 0 {
			t.Errorf("ListAll() after purge = %v, %v", all, err)
		}

		if err := schemes.Delete(ctx, s.ID); err != nil {
			t.Fatalf("Delete(scheme) error = %v", err)
		}
		if err := schemes.Delete(ctx, s.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Delete(again) error = %v, want ErrNotFound", err)
		}
	})
}
