package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/todoman/internal/model"
)

// PostgresTodoRepo はPostgreSQLを使用したTODOリポジトリ。
type PostgresTodoRepo struct {
	db *sql.DB
}

// NewPostgresTodoRepo はPostgresTodoRepoを生成する。
func NewPostgresTodoRepo(db *sql.DB) *PostgresTodoRepo {
	return &PostgresTodoRepo{db: db}
}

// FindByID は指定IDのTODOを取得する。見つからない場合はnilを返す。
func (r *PostgresTodoRepo) FindByID(ctx context.Context, id string) (*model.Todo, error) {
	todo := &model.Todo{}
	var description sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, description, completed, created_at, updated_at
		 FROM todos WHERE id = $1`,
		id,
	).Scan(
		&todo.ID, &todo.UserID, &todo.Title, &description,
		&todo.Completed, &todo.CreatedAt, &todo.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("TODOの取得に失敗しました: %w", err)
	}

	todo.Description = nullStringPtr(description)
	return todo, nil
}

// List は条件に一致するTODOの1ページ分と総件数を返す。
func (r *PostgresTodoRepo) List(ctx context.Context, q model.TodoListQuery) ([]*model.Todo, int, error) {
	listSQL, countSQL, args := buildTodoListQuery(q)

	// 1. 総件数（LIMIT/OFFSETの2引数を除いた引数で実行する）
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("TODO件数の取得に失敗しました: %w", err)
	}
	if total == 0 {
		return []*model.Todo{}, 0, nil
	}

	// 2. ページ本体
	rows, err := r.db.QueryContext(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("TODO一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	todos := make([]*model.Todo, 0, q.PerPage)
	for rows.Next() {
		todo := &model.Todo{}
		var description sql.NullString
		dest := []any{
			&todo.ID, &todo.UserID, &todo.Title, &description,
			&todo.Completed, &todo.CreatedAt, &todo.UpdatedAt,
		}
		var owner model.TodoOwner
		if q.WithOwner {
			dest = append(dest, &owner.ID, &owner.Name, &owner.Email)
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, 0, fmt.Errorf("TODO行の読み取りに失敗しました: %w", err)
		}

		todo.Description = nullStringPtr(description)
		if q.WithOwner {
			todo.Owner = &owner
		}
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("TODO一覧の走査に失敗しました: %w", err)
	}

	return todos, total, nil
}

// Create はTODOを作成する。
func (r *PostgresTodoRepo) Create(ctx context.Context, todo *model.Todo) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO todos (id, user_id, title, description, completed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		todo.ID, todo.UserID, todo.Title, todo.Description,
		todo.Completed, todo.CreatedAt, todo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("TODOの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はTODOのtitle、description、completed、updated_atを上書き更新する。
func (r *PostgresTodoRepo) Update(ctx context.Context, todo *model.Todo) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE todos SET title = $2, description = $3, completed = $4, updated_at = $5
		 WHERE id = $1`,
		todo.ID, todo.Title, todo.Description, todo.Completed, todo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("TODOの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのTODOを削除する。
func (r *PostgresTodoRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM todos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("TODOの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("todo not found: %s", id)
	}
	return nil
}

// buildTodoListQuery はTodoListQueryから一覧取得SQLと件数取得SQLを組み立てる。
// 引数の末尾2つは一覧SQL用のLIMITとOFFSETで、件数SQLはそれより前の引数のみを使う。
// sort_byはmodel.TodoSortColumnsで検証済みであることを前提とし、未知の値は無視する。
func buildTodoListQuery(q model.TodoListQuery) (listSQL, countSQL string, args []any) {
	var where []string

	args = append(args, q.UserID)
	where = append(where, fmt.Sprintf("t.user_id = $%d", len(args)))

	if q.Completed != nil {
		args = append(args, *q.Completed)
		where = append(where, fmt.Sprintf("t.completed = $%d", len(args)))
	}

	if q.Search != "" {
		args = append(args, "%"+escapeLike(q.Search)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(t.title ILIKE $%d OR t.description ILIKE $%d)", n, n))
	}

	whereSQL := " WHERE " + strings.Join(where, " AND ")

	// ORDER BY（識別子はプレースホルダにできないため許可リストで検証する）
	order := "t.created_at ASC, t.id ASC"
	if model.TodoSortColumns[q.SortBy] {
		dir := "ASC"
		if strings.EqualFold(q.SortDirection, "desc") {
			dir = "DESC"
		}
		order = fmt.Sprintf("t.%s %s, t.id %s", q.SortBy, dir, dir)
		if q.SortBy == "id" {
			order = fmt.Sprintf("t.id %s", dir)
		}
	}

	selectCols := "t.id, t.user_id, t.title, t.description, t.completed, t.created_at, t.updated_at"
	from := " FROM todos t"
	if q.WithOwner {
		selectCols += ", u.id, u.name, u.email"
		from += " JOIN users u ON u.id = t.user_id"
	}

	countSQL = "SELECT count(*) FROM todos t" + whereSQL

	args = append(args, q.PerPage, q.Offset())
	listSQL = fmt.Sprintf("SELECT %s%s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		selectCols, from, whereSQL, order, len(args)-1, len(args))

	return listSQL, countSQL, args
}

// escapeLike はLIKEパターンのメタ文字（\ % _）をエスケープする。
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// compile-time interface check
var _ TodoRepository = (*PostgresTodoRepo)(nil)
