package user

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/password"
	"github.com/hitoshi/todoman/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn      func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) Save(ctx context.Context, user *model.User) error {
	return nil
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

func strPtr(s string) *string { return &s }

// --- テスト ---

func TestRegister_CreatesUserWithHashedPassword(t *testing.T) {
	var created *model.User
	repo := &mockUserRepo{
		createFn: func(_ context.Context, user *model.User) error {
			created = user
			return nil
		},
	}
	hasher := password.NewBcryptHasher(bcrypt.MinCost)
	svc := NewService(repo, hasher)

	user, err := svc.Register(context.Background(), RegisterInput{
		Name:     " Alice ",
		Email:    "Alice@Example.com",
		Password: "secret123",
		Role:     model.RoleAdmin,
		Bio:      strPtr("hello"),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if created == nil || created != user {
		t.Fatal("Create should be called with the returned user")
	}
	if user.ID == "" {
		t.Error("ID should be generated")
	}
	if user.Email != "alice@example.com" {
		t.Errorf("Email = %q, want lower-cased", user.Email)
	}
	if user.Name != "Alice" {
		t.Errorf("Name = %q, want trimmed", user.Name)
	}
	if user.Role != model.RoleAdmin {
		t.Errorf("Role = %q", user.Role)
	}
	if user.PasswordHash == "secret123" || !hasher.Verify("secret123", user.PasswordHash) {
		t.Error("password should be stored as a bcrypt hash")
	}
	if user.Bio == nil || *user.Bio != "hello" {
		t.Errorf("Bio = %v", user.Bio)
	}
	if user.CreatedAt.IsZero() || !user.CreatedAt.Equal(user.UpdatedAt) {
		t.Errorf("timestamps = %v / %v", user.CreatedAt, user.UpdatedAt)
	}
}

func TestRegister_ExistingEmailIsConflict(t *testing.T) {
	createCalled := false
	repo := &mockUserRepo{
		findByEmailFn: func(_ context.Context, email string) (*model.User, error) {
			return &model.User{ID: "existing", Email: email}, nil
		},
		createFn: func(context.Context, *model.User) error {
			createCalled = true
			return nil
		},
	}
	svc := NewService(repo, password.NewBcryptHasher(bcrypt.MinCost))

	_, err := svc.Register(context.Background(), RegisterInput{Name: "A", Email: "a@example.com", Password: "secret123"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmailTaken {
		t.Fatalf("err = %v, want EMAIL_TAKEN", err)
	}
	if apiErr.Message != "Email already registered" {
		t.Errorf("message = %q", apiErr.Message)
	}
	if createCalled {
		t.Error("Create should not be called for an existing email")
	}
}

func TestRegister_UniqueViolationRaceIsConflict(t *testing.T) {
	repo := &mockUserRepo{
		createFn: func(context.Context, *model.User) error {
			return repository.ErrDuplicateEmail
		},
	}
	svc := NewService(repo, password.NewBcryptHasher(bcrypt.MinCost))

	_, err := svc.Register(context.Background(), RegisterInput{Name: "A", Email: "a@example.com", Password: "secret123"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmailTaken {
		t.Fatalf("err = %v, want EMAIL_TAKEN", err)
	}
}

func TestRegister_DefaultsRoleToUser(t *testing.T) {
	svc := NewService(&mockUserRepo{}, password.NewBcryptHasher(bcrypt.MinCost))

	user, err := svc.Register(context.Background(), RegisterInput{Name: "A", Email: "a@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Role != model.RoleUser {
		t.Errorf("Role = %q, want user", user.Role)
	}
}

func TestRegister_RepositoryErrorIsWrapped(t *testing.T) {
	dbErr := errors.New("connection refused")
	repo := &mockUserRepo{
		findByEmailFn: func(context.Context, string) (*model.User, error) { return nil, dbErr },
	}
	svc := NewService(repo, password.NewBcryptHasher(bcrypt.MinCost))

	_, err := svc.Register(context.Background(), RegisterInput{Name: "A", Email: "a@example.com", Password: "secret123"})
	if !errors.Is(err, dbErr) {
		t.Errorf("err = %v, want wrapped %v", err, dbErr)
	}
}
