// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/password"
	"github.com/hitoshi/todoman/internal/repository"
)

// RegisterInput はユーザー登録の入力。形式の検証はハンドラーで済んでいる前提。
type RegisterInput struct {
	Name           string
	Email          string
	Password       string
	Role           string
	Bio            *string
	ProfilePicture *string
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	hasher   password.Hasher
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, hasher password.Hasher) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		now:      time.Now,
	}
}

// Register はユーザーを登録する。登録済みのメールアドレスの場合はEmailTakenエラーを返す。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	// 1. 重複確認（同時登録はユニーク制約で検出する）
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	// 2. パスワードのハッシュ化
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	// 3. 作成
	now := s.now().UTC()
	role := in.Role
	if role == "" {
		role = model.RoleUser
	}
	user := &model.User{
		ID:             uuid.New().String(),
		Name:           strings.TrimSpace(in.Name),
		Email:          email,
		PasswordHash:   hash,
		Role:           role,
		Bio:            in.Bio,
		ProfilePicture: in.ProfilePicture,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "ユーザーを登録しました",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)

	return user, nil
}
