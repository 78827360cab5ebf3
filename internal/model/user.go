// Package model はドメインモデルを定義する。
package model

import "time"

// ユーザーのロール。
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User はサービス利用ユーザーを表す。
// PasswordHashとRememberTokenはAPIレスポンスに含めない。
type User struct {
	ID             string
	Name           string
	Email          string
	PasswordHash   string
	Role           string
	Bio            *string
	ProfilePicture *string
	LastLoginAt    *time.Time
	LastLoginIP    *string
	RememberToken  *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsAdmin は管理者ロールかどうかを返す。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
