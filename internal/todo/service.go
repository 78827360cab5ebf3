// Package todo はTODO管理のドメインロジックを提供する。
// 全ての操作は呼び出しユーザーの所有するTODOに限定される。
package todo

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
	"github.com/hitoshi/todoman/internal/security"
)

const (
	// DefaultPerPage はper_page未指定時の件数。
	DefaultPerPage = 10
	// MaxPerPage はper_pageの上限。
	MaxPerPage = 100
	// maxPage はpageの上限。OFFSETの算出が桁あふれしない範囲に収める。
	maxPage = math.MaxInt / MaxPerPage
	// maxTitleLength はtitleの最大文字数。
	maxTitleLength = 255
)

// ListParams は一覧取得の条件。
type ListParams struct {
	// Completed がnilの場合は完了状態で絞り込まない。
	Completed     *bool
	SortBy        string
	SortDirection string
	Page          int
	PerPage       int
}

// CreateInput はTODO作成の入力。
type CreateInput struct {
	Title       string
	Description *string
	Completed   bool
}

// Actor は操作を行うユーザー。
type Actor struct {
	UserID string
	Role   string
}

// Service はTODO管理のサービス層。
type Service struct {
	todoRepo  repository.TodoRepository
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(todoRepo repository.TodoRepository, sanitizer security.TextSanitizer) *Service {
	return &Service{
		todoRepo:  todoRepo,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// List はユーザーのTODOを1ページ分返す。
func (s *Service) List(ctx context.Context, userID string, p ListParams) (model.Page[*model.Todo], error) {
	return s.list(ctx, model.TodoListQuery{UserID: userID, Completed: p.Completed}, p)
}

// Search はtitleまたはdescriptionに検索語を含むユーザーのTODOを返す。大文字小文字は区別しない。
func (s *Service) Search(ctx context.Context, userID, query string, p ListParams) (model.Page[*model.Todo], error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return model.Page[*model.Todo]{}, model.NewFieldError("search", "The search field is required.")
	}
	return s.list(ctx, model.TodoListQuery{UserID: userID, Search: query}, p)
}

// ListByUser は指定ユーザーのTODOを所有者の概要付きで返す。
// 本人または管理者のみ参照できる。
func (s *Service) ListByUser(ctx context.Context, actor Actor, targetUserID string, p ListParams) (model.Page[*model.Todo], error) {
	if actor.UserID != targetUserID && actor.Role != model.RoleAdmin {
		return model.Page[*model.Todo]{}, model.NewForbiddenError()
	}
	if _, err := uuid.Parse(targetUserID); err != nil {
		return model.NewPage[*model.Todo](nil, 0, normalizePage(p.Page), normalizePerPage(p.PerPage)), nil
	}
	return s.list(ctx, model.TodoListQuery{UserID: targetUserID, Completed: p.Completed, WithOwner: true}, p)
}

// list は並び順とページングを検証・補正して一覧を取得する。
func (s *Service) list(ctx context.Context, q model.TodoListQuery, p ListParams) (model.Page[*model.Todo], error) {
	if err := validateSort(p.SortBy, p.SortDirection); err != nil {
		return model.Page[*model.Todo]{}, err
	}

	q.SortBy = p.SortBy
	q.SortDirection = strings.ToLower(p.SortDirection)
	q.Page = normalizePage(p.Page)
	q.PerPage = normalizePerPage(p.PerPage)

	todos, total, err := s.todoRepo.List(ctx, q)
	if err != nil {
		return model.Page[*model.Todo]{}, fmt.Errorf("TODO一覧の取得に失敗しました: %w", err)
	}

	return model.NewPage(todos, total, q.Page, q.PerPage), nil
}

// Create はTODOを作成する。
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Todo, error) {
	title, err := s.cleanTitle(in.Title)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	todo := &model.Todo{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       title,
		Description: s.cleanDescription(in.Description),
		Completed:   in.Completed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.todoRepo.Create(ctx, todo); err != nil {
		return nil, fmt.Errorf("TODOの作成に失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "TODOを作成しました",
		slog.String("user_id", userID),
		slog.String("todo_id", todo.ID),
	)
	return todo, nil
}

// Get はユーザーのTODOを1件返す。
func (s *Service) Get(ctx context.Context, userID, todoID string) (*model.Todo, error) {
	return s.findOwned(ctx, userID, todoID)
}

// Update はTODOを部分更新する。nilのフィールドは変更しない。
func (s *Service) Update(ctx context.Context, userID, todoID string, upd model.TodoUpdate) (*model.Todo, error) {
	todo, err := s.findOwned(ctx, userID, todoID)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		title, err := s.cleanTitle(*upd.Title)
		if err != nil {
			return nil, err
		}
		todo.Title = title
	}
	if upd.Description != nil {
		todo.Description = s.cleanDescription(upd.Description)
	}
	if upd.Completed != nil {
		todo.Completed = *upd.Completed
	}

	return s.save(ctx, todo)
}

// SetCompleted はTODOの完了状態を設定する。
func (s *Service) SetCompleted(ctx context.Context, userID, todoID string, completed bool) (*model.Todo, error) {
	todo, err := s.findOwned(ctx, userID, todoID)
	if err != nil {
		return nil, err
	}
	todo.Completed = completed
	return s.save(ctx, todo)
}

// Delete はTODOを削除する。
func (s *Service) Delete(ctx context.Context, userID, todoID string) error {
	if _, err := s.findOwned(ctx, userID, todoID); err != nil {
		return err
	}
	if err := s.todoRepo.Delete(ctx, todoID); err != nil {
		return fmt.Errorf("TODOの削除に失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "TODOを削除しました",
		slog.String("user_id", userID),
		slog.String("todo_id", todoID),
	)
	return nil
}

func (s *Service) save(ctx context.Context, todo *model.Todo) (*model.Todo, error) {
	todo.UpdatedAt = s.now().UTC()
	if err := s.todoRepo.Update(ctx, todo); err != nil {
		return nil, fmt.Errorf("TODOの更新に失敗しました: %w", err)
	}
	return todo, nil
}

// findOwned はTODOを取得し、所有者を確認する。
// 存在しない場合（UUIDとして不正なIDを含む）はNotFound、他ユーザーの場合はForbiddenを返す。
func (s *Service) findOwned(ctx context.Context, userID, todoID string) (*model.Todo, error) {
	if _, err := uuid.Parse(todoID); err != nil {
		return nil, model.NewTodoNotFoundError()
	}

	todo, err := s.todoRepo.FindByID(ctx, todoID)
	if err != nil {
		return nil, fmt.Errorf("TODOの取得に失敗しました: %w", err)
	}
	if todo == nil {
		return nil, model.NewTodoNotFoundError()
	}
	if todo.UserID != userID {
		return nil, model.NewForbiddenError()
	}
	return todo, nil
}

// cleanTitle はtitleからHTMLを除去し、必須・文字数を検証する。
func (s *Service) cleanTitle(raw string) (string, error) {
	title := s.sanitizer.Sanitize(raw)
	if title == "" {
		return "", model.NewFieldError("title", "The title field is required.")
	}
	if len([]rune(title)) > maxTitleLength {
		return "", model.NewFieldError("title", fmt.Sprintf("The title may not be greater than %d characters.", maxTitleLength))
	}
	return title, nil
}

// cleanDescription はdescriptionからHTMLを除去する。空になった場合はnilを返す。
func (s *Service) cleanDescription(raw *string) *string {
	if raw == nil {
		return nil
	}
	desc := s.sanitizer.Sanitize(*raw)
	if desc == "" {
		return nil
	}
	return &desc
}

// validateSort はsort_byとsort_directionを検証する。
func validateSort(sortBy, direction string) error {
	fields := map[string][]string{}
	if sortBy != "" && !model.TodoSortColumns[sortBy] {
		fields["sort_by"] = []string{"The selected sort by is invalid."}
	}
	if direction != "" && !strings.EqualFold(direction, "asc") && !strings.EqualFold(direction, "desc") {
		fields["sort_direction"] = []string{"The selected sort direction is invalid."}
	}
	if len(fields) > 0 {
		return model.NewValidationError(fields)
	}
	return nil
}

func normalizePage(page int) int {
	switch {
	case page < 1:
		return 1
	case page > maxPage:
		return maxPage
	default:
		return page
	}
}

func normalizePerPage(perPage int) int {
	switch {
	case perPage < 1:
		return DefaultPerPage
	case perPage > MaxPerPage:
		return MaxPerPage
	default:
		return perPage
	}
}
