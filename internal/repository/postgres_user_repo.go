package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/todoman/internal/model"
)

// userColumns はusersテーブルのSELECT対象カラム。scanUserと順序を合わせること。
const userColumns = `id, name, email, password_hash, role, bio, profile_picture,
	last_login_at, last_login_ip, remember_token, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		normalizeEmail(email),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。emailが重複する場合はErrDuplicateEmailを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	user.Email = normalizeEmail(user.Email)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, bio, profile_picture, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Role,
		user.Bio, user.ProfilePicture, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Save はユーザーのプロフィールとログイン情報を上書き保存する。
// パスワードハッシュとemailは変更しない。
func (r *PostgresUserRepo) Save(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET
		    name = $2, role = $3, bio = $4, profile_picture = $5,
		    last_login_at = $6, last_login_ip = $7, remember_token = $8,
		    updated_at = $9
		 WHERE id = $1`,
		user.ID, user.Name, user.Role, user.Bio, user.ProfilePicture,
		user.LastLoginAt, user.LastLoginIP, user.RememberToken,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", user.ID)
	}
	return nil
}

// scanUser は1行をmodel.Userに読み込む。
func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var bio, profilePicture, lastLoginIP, rememberToken sql.NullString
	var lastLoginAt sql.NullTime

	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role,
		&bio, &profilePicture,
		&lastLoginAt, &lastLoginIP, &rememberToken,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Bio = nullStringPtr(bio)
	user.ProfilePicture = nullStringPtr(profilePicture)
	user.LastLoginAt = nullTimePtr(lastLoginAt)
	user.LastLoginIP = nullStringPtr(lastLoginIP)
	user.RememberToken = nullStringPtr(rememberToken)

	return user, nil
}

// normalizeEmail はメールアドレスの比較用正規化を行う。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
