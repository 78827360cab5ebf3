// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/todoman/internal/model"
)

// ErrDuplicateEmail はemailのユニーク制約違反を表す。
var ErrDuplicateEmail = errors.New("email already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	// 比較は小文字化したメールアドレスで行う。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。emailが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// Save はユーザーのプロフィールとログイン情報を上書き保存する。
	Save(ctx context.Context, user *model.User) error
}

// TodoRepository はTODOデータの永続化インターフェース。
type TodoRepository interface {
	// FindByID は指定IDのTODOを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Todo, error)

	// List は条件に一致するTODOの1ページ分と総件数を返す。
	List(ctx context.Context, q model.TodoListQuery) ([]*model.Todo, int, error)

	// Create はTODOを作成する。
	Create(ctx context.Context, todo *model.Todo) error

	// Update はTODOのtitle、description、completed、updated_atを上書き更新する。
	Update(ctx context.Context, todo *model.Todo) error

	// Delete は指定IDのTODOを削除する。
	Delete(ctx context.Context, id string) error
}
