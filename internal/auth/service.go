// Package auth はユーザー登録、ログイン、アクセストークンの発行と検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/hitoshi/schemebot/internal/model"
	"github.com/hitoshi/schemebot/internal/repository"
)

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Aadhaar  string
	Phone    string
}

// Session はログイン結果。アクセストークンとユーザーを保持する。
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	tokens   *TokenManager
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, tokens *TokenManager, logger *slog.Logger) *Service {
	return &Service{
		userRepo: userRepo,
		tokens:   tokens,
		logger:   logger,
	}
}

// Register はユーザーを登録し、ログイン済みのセッションを返す。
// 全項目が必須で、登録済みのメールアドレスは拒否する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	in.Aadhaar = strings.TrimSpace(in.Aadhaar)
	in.Phone = strings.TrimSpace(in.Phone)

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", in.Name},
		{"email", in.Email},
		{"password", in.Password},
		{"aadhaar", in.Aadhaar},
		{"phone", in.Phone},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, model.NewMissingFieldsError(missing)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "The email address is not valid.",
			Category: "validation",
			Action:   "Enter an email address such as name@example.com.",
		}
	}

	existing, err := s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := HashPassword(in.Password)
	if errors.Is(err, ErrPasswordTooLong) {
		return nil, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "The password is too long.",
			Category: "validation",
			Action:   "Use a password of at most 72 bytes.",
		}
	}
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Aadhaar:      in.Aadhaar,
		Phone:        in.Phone,
		Role:         model.RoleUser,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 同時登録で一意制約に当たった場合
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	return s.issue(user)
}

// Login はメールアドレスとパスワードを検証し、セッションを返す。
// ユーザー不在とパスワード不一致は区別せずに同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !CheckPassword(user.PasswordHash, password) {
		s.logger.Warn("login failed", slog.String("email", email))
		return nil, model.NewInvalidCredentialsError()
	}

	return s.issue(user)
}

// CurrentUser はトークンのユーザーIDからユーザーを取得する。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// VerifyToken はアクセストークンを検証してクレームを返す。
func (s *Service) VerifyToken(token string) (*Claims, error) {
	return s.tokens.Verify(token)
}

func (s *Service) issue(user *model.User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
