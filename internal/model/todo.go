// Package model はドメインモデルを定義する。
package model

import (
	"math"
	"time"
)

// Todo はユーザーが所有するTODO項目を表す。
type Todo struct {
	ID          string
	UserID      string
	Title       string
	Description *string
	Completed   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Owner はユーザー別一覧でのみ設定される所有者の概要。
	Owner *TodoOwner
}

// TodoOwner はTODO一覧に添える所有者の概要。
type TodoOwner struct {
	ID    string
	Name  string
	Email string
}

// TodoSortColumns はsort_byに指定できるカラムの許可リスト。
var TodoSortColumns = map[string]bool{
	"id":         true,
	"title":      true,
	"completed":  true,
	"created_at": true,
	"updated_at": true,
}

// TodoListQuery はTODO一覧・検索の条件を表す。
type TodoListQuery struct {
	UserID string

	// Completed がnilの場合は完了状態で絞り込まない。
	Completed *bool

	// Search が空でない場合はtitleまたはdescriptionの部分一致で絞り込む。
	Search string

	// WithOwner がtrueの場合は所有者の概要を結合して返す。
	WithOwner bool

	SortBy        string
	SortDirection string
	Page          int
	PerPage       int
}

// Offset はページ番号と件数からOFFSETを算出する。
// 桁あふれする場合はmath.MaxIntに丸め、空ページになるようにする。
func (q TodoListQuery) Offset() int {
	if q.Page < 1 || q.PerPage < 1 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.PerPage {
		return math.MaxInt
	}
	return (q.Page - 1) * q.PerPage
}

// TodoUpdate はTODOの部分更新内容を表す。nilのフィールドは変更しない。
type TodoUpdate struct {
	Title       *string
	Description *string
	Completed   *bool
}
