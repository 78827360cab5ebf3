package todo

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
	"github.com/hitoshi/todoman/internal/security"
)

// --- モック ---

type mockTodoRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Todo, error)
	listFn     func(ctx context.Context, q model.TodoListQuery) ([]*model.Todo, int, error)
	createFn   func(ctx context.Context, todo *model.Todo) error
	updateFn   func(ctx context.Context, todo *model.Todo) error
	deleteFn   func(ctx context.Context, id string) error
}

func (m *mockTodoRepo) FindByID(ctx context.Context, id string) (*model.Todo, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockTodoRepo) List(ctx context.Context, q model.TodoListQuery) ([]*model.Todo, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return nil, 0, nil
}

func (m *mockTodoRepo) Create(ctx context.Context, todo *model.Todo) error {
	if m.createFn != nil {
		return m.createFn(ctx, todo)
	}
	return nil
}

func (m *mockTodoRepo) Update(ctx context.Context, todo *model.Todo) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, todo)
	}
	return nil
}

func (m *mockTodoRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

var _ repository.TodoRepository = (*mockTodoRepo)(nil)

// --- ヘルパー ---

const (
	aliceID = "11111111-1111-1111-1111-111111111111"
	bobID   = "22222222-2222-2222-2222-222222222222"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

// repoWithTodo は1件のTODOを返すモックを生成する。
func repoWithTodo(todo *model.Todo) *mockTodoRepo {
	return &mockTodoRepo{
		findByIDFn: func(_ context.Context, id string) (*model.Todo, error) {
			if id == todo.ID {
				cp := *todo
				return &cp, nil
			}
			return nil, nil
		},
	}
}

func newAliceTodo() *model.Todo {
	return &model.Todo{
		ID:        uuid.New().String(),
		UserID:    aliceID,
		Title:     "Buy milk",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func assertCode(t *testing.T, err error, code string) *model.APIError {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *model.APIError", err)
	}
	if apiErr.Code != code {
		t.Fatalf("code = %s, want %s", apiErr.Code, code)
	}
	return apiErr
}

// --- List ---

func TestList_DefaultsAndPage(t *testing.T) {
	var got model.TodoListQuery
	repo := &mockTodoRepo{
		listFn: func(_ context.Context, q model.TodoListQuery) ([]*model.Todo, int, error) {
			got = q
			return []*model.Todo{newAliceTodo()}, 11, nil
		},
	}
	svc := NewService(repo, security.NewTextSanitizer())

	page, err := svc.List(context.Background(), aliceID, ListParams{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	if got.UserID != aliceID || got.Page != 1 || got.PerPage != DefaultPerPage {
		t.Errorf("query = %+v", got)
	}
	if got.WithOwner || got.Search != "" {
		t.Errorf("plain list should not join owner or search: %+v", got)
	}
	if page.Total != 11 || page.LastPage != 2 || page.CurrentPage != 1 {
		t.Errorf("page = %+v", page)
	}
}

func TestList_ClampsPerPage(t *testing.T) {
	var got model.TodoListQuery
	repo := &mockTodoRepo{
		listFn: func(_ context.Context, q model.TodoListQuery) ([]*model.Todo, int, error) {
			got = q
			return nil, 0, nil
		},
	}
	svc := NewService(repo, security.NewTextSanitizer())

	if _, err := svc.List(context.Background(), aliceID, ListParams{PerPage: 1000, Page: -3}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if got.PerPage != MaxPerPage || got.Page != 1 {
		t.Errorf("per_page/page = %d/%d, want %d/1", got.PerPage, got.Page, MaxPerPage)
	}
}

func TestList_CapsHugePage(t *testing.T) {
	var got model.TodoListQuery
	repo := &mockTodoRepo{
		listFn: func(_ context.Context, q model.TodoListQuery) ([]*model.Todo, int, error) {
			got = q
			return nil, 3, nil
		},
	}
	svc := NewService(repo, security.NewTextSanitizer())

	page, err := svc.List(context.Background(), aliceID, ListParams{Page: math.MaxInt, PerPage: MaxPerPage})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got.Page != maxPage {
		t.Errorf("page = %d, want %d", got.Page, maxPage)
	}
	if got.Offset() < 0 {
		t.Errorf("offset = %d, want non-negative", got.Offset())
	}
	if len(page.Data) != 0 || page.From != nil {
		t.Errorf("page beyond the end should be empty: %+v", page)
	}
}

func TestList_PassesFiltersAndSort(t *testing.T) {
	var got model.TodoListQuery
	repo := &mockTodoRepo{
		listFn: func(_ context.Context, q model.TodoListQuery) ([]*model.Todo, int, error) {
			got = q
			return nil, 0, nil
		},
	}
	svc := NewService(repo, security.NewTextSanitizer())

	_, err := svc.List(context.Background(), aliceID, ListParams{
		Completed: boolPtr(true), SortBy: "title", SortDirection: "DESC", PerPage: 5, Page: 2,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got.Completed == nil || !*got.Completed {
		t.Error("completed filter should be passed through")
	}
	if got.SortBy != "title" || got.SortDirection != "desc" {
		t.Errorf("sort = %s %s", got.SortBy, got.SortDirection)
	}
	if got.PerPage != 5 || got.Page != 2 {
		t.Errorf("paging = %d/%d", got.Page, got.PerPage)
	}
}

func TestList_RejectsUnknownSort(t *testing.T) {
	called := false
	repo := &mockTodoRepo{
		listFn: func(context.Context, model.TodoListQuery) ([]*model.Todo, int, error) {
			called = true
			return nil, 0, nil
		},
	}
	svc := NewService(repo, security.NewTextSanitizer())

	_, err := svc.List(context.Background(), aliceID, ListParams{SortBy: "password_hash", SortDirection: "sideways"})
	apiErr := assertCode(t, err, model.ErrCodeValidation)
	if _, ok := apiErr.Fields["sort_by"]; !ok {
		t.Error("sort_by error missing")
	}
	if _, ok := apiErr.Fields["sort_direction"]; !ok {
		t.Error("sort_direction error missing")
	}
	if called {
		t.Error("repository should not be queried for invalid sort")
	}
}

// --- Search ---

func TestSearch_ScopedToCaller(t *testing.T) {
	var got model.TodoListQuery
	repo := &mockTodoRepo{
		listFn: func(_ context.Context, q model.TodoListQuery) ([]*model.Todo, int, error) {
			got = q
			return nil, 0, nil
		},
	}
	svc := NewService(repo, security.NewTextSanitizer())

	if _, err := svc.Search(context.Background(), aliceID, " milk ", ListParams{}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got.UserID != aliceID || got.Search != "milk" {
		t.Errorf("query = %+v", got)
	}
}

func TestSearch_RequiresQuery(t *testing.T) {
	svc := NewService(&mockTodoRepo{}, security.NewTextSanitizer())

	_, err := svc.Search(context.Background(), aliceID, "  ", ListParams{})
	apiErr := assertCode(t, err, model.ErrCodeValidation)
	if _, ok := apiErr.Fields["search"]; !ok {
		t.Error("query error missing")
	}
}

// --- ListByUser ---

func TestListByUser_Authorization(t *testing.T) {
	tests := []struct {
		name    string
		actor   Actor
		target  string
		wantErr string
	}{
		{"self", Actor{UserID: aliceID, Role: model.RoleUser}, aliceID, ""},
		{"admin", Actor{UserID: bobID, Role: model.RoleAdmin}, aliceID, ""},
		{"other user", Actor{UserID: bobID, Role: model.RoleUser}, aliceID, model.ErrCodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got model.TodoListQuery
			repo := &mockTodoRepo{
				listFn: func(_ context.Context, q model.TodoListQuery) ([]*model.Todo, int, error) {
					got = q
					return nil, 0, nil
				},
			}
			svc := NewService(repo, security.NewTextSanitizer())

			_, err := svc.ListByUser(context.Background(), tt.actor, tt.target, ListParams{})
			if tt.wantErr != "" {
				apiErr := assertCode(t, err, tt.wantErr)
				if apiErr.Message != "Unauthorized" {
					t.Errorf("message = %q", apiErr.Message)
				}
				return
			}
			if err != nil {
				t.Fatalf("ListByUser: %v", err)
			}
			if got.UserID != tt.target || !got.WithOwner {
				t.Errorf("query = %+v, want target with owner", got)
			}
		})
	}
}

func TestListByUser_MalformedIDForAdminIsEmpty(t *testing.T) {
	repo := &mockTodoRepo{
		listFn: func(context.Context, model.TodoListQuery) ([]*model.Todo, int, error) {
			t.Error("repository should not be queried for a malformed id")
			return nil, 0, nil
		},
	}
	svc := NewService(repo, security.NewTextSanitizer())

	page, err := svc.ListByUser(context.Background(), Actor{UserID: bobID, Role: model.RoleAdmin}, "not-a-uuid", ListParams{})
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if page.Total != 0 || len(page.Data) != 0 {
		t.Errorf("page = %+v, want empty", page)
	}
}

// --- Create ---

func TestCreate_SanitizesAndStores(t *testing.T) {
	var created *model.Todo
	repo := &mockTodoRepo{
		createFn: func(_ context.Context, todo *model.Todo) error {
			created = todo
			return nil
		},
	}
	svc := NewService(repo, security.NewTextSanitizer())

	todo, err := svc.Create(context.Background(), aliceID, CreateInput{
		Title:       "<b>Buy</b> milk<script>alert(1)</script>",
		Description: strPtr("<i>2 litres</i>"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created != todo {
		t.Fatal("Create should store the returned todo")
	}
	if todo.Title != "Buy milk" {
		t.Errorf("Title = %q", todo.Title)
	}
	if todo.Description == nil || *todo.Description != "2 litres" {
		t.Errorf("Description = %v", todo.Description)
	}
	if todo.UserID != aliceID || todo.Completed {
		t.Errorf("todo = %+v", todo)
	}
	if _, err := uuid.Parse(todo.ID); err != nil {
		t.Errorf("ID %q is not a uuid", todo.ID)
	}
}

func TestCreate_TitleValidation(t *testing.T) {
	svc := NewService(&mockTodoRepo{}, security.NewTextSanitizer())

	tests := []struct {
		name  string
		title string
	}{
		{"empty", ""},
		{"only markup", "<b></b>"},
		{"too long", strings.Repeat("a", 256)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), aliceID, CreateInput{Title: tt.title})
			apiErr := assertCode(t, err, model.ErrCodeValidation)
			if _, ok := apiErr.Fields["title"]; !ok {
				t.Error("title error missing")
			}
		})
	}
}

// --- Get / Update / Delete ---

func TestGet_NotFoundForbiddenAndMalformed(t *testing.T) {
	todo := newAliceTodo()
	svc := NewService(repoWithTodo(todo), security.NewTextSanitizer())
	ctx := context.Background()

	got, err := svc.Get(ctx, aliceID, todo.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Buy milk" {
		t.Errorf("Title = %q", got.Title)
	}

	_, err = svc.Get(ctx, bobID, todo.ID)
	assertCode(t, err, model.ErrCodeForbidden)

	_, err = svc.Get(ctx, aliceID, uuid.New().String())
	apiErr := assertCode(t, err, model.ErrCodeTodoNotFound)
	if apiErr.Message != "Todo not found" {
		t.Errorf("message = %q", apiErr.Message)
	}

	_, err = svc.Get(ctx, aliceID, "123")
	assertCode(t, err, model.ErrCodeTodoNotFound)
}

func TestUpdate_PartialFields(t *testing.T) {
	todo := newAliceTodo()
	todo.Description = strPtr("keep me")
	repo := repoWithTodo(todo)
	var updated *model.Todo
	repo.updateFn = func(_ context.Context, saved *model.Todo) error {
		updated = saved
		return nil
	}
	svc := NewService(repo, security.NewTextSanitizer())
	fixed := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	got, err := svc.Update(context.Background(), aliceID, todo.ID, model.TodoUpdate{Completed: boolPtr(true)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated == nil {
		t.Fatal("repository Update should be called")
	}
	if !got.Completed || got.Title != "Buy milk" {
		t.Errorf("todo = %+v", got)
	}
	if got.Description == nil || *got.Description != "keep me" {
		t.Errorf("Description changed: %v", got.Description)
	}
	if !got.UpdatedAt.Equal(fixed) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, fixed)
	}
}

func TestUpdate_EmptyTitleRejected(t *testing.T) {
	todo := newAliceTodo()
	svc := NewService(repoWithTodo(todo), security.NewTextSanitizer())

	_, err := svc.Update(context.Background(), aliceID, todo.ID, model.TodoUpdate{Title: strPtr("  ")})
	assertCode(t, err, model.ErrCodeValidation)
}

func TestUpdate_OtherUsersTodoIsForbidden(t *testing.T) {
	todo := newAliceTodo()
	repo := repoWithTodo(todo)
	repo.updateFn = func(context.Context, *model.Todo) error {
		t.Error("Update must not be called for another user's todo")
		return nil
	}
	svc := NewService(repo, security.NewTextSanitizer())

	_, err := svc.Update(context.Background(), bobID, todo.ID, model.TodoUpdate{Title: strPtr("hijack")})
	assertCode(t, err, model.ErrCodeForbidden)
}

func TestSetCompleted(t *testing.T) {
	todo := newAliceTodo()
	svc := NewService(repoWithTodo(todo), security.NewTextSanitizer())

	got, err := svc.SetCompleted(context.Background(), aliceID, todo.ID, true)
	if err != nil {
		t.Fatalf("SetCompleted: %v", err)
	}
	if !got.Completed {
		t.Error("todo should be completed")
	}

	got, err = svc.SetCompleted(context.Background(), aliceID, todo.ID, false)
	if err != nil {
		t.Fatalf("SetCompleted: %v", err)
	}
	if got.Completed {
		t.Error("todo should be pending")
	}
}

func TestDelete(t *testing.T) {
	todo := newAliceTodo()
	repo := repoWithTodo(todo)
	var deleted string
	repo.deleteFn = func(_ context.Context, id string) error {
		deleted = id
		return nil
	}
	svc := NewService(repo, security.NewTextSanitizer())

	if err := svc.Delete(context.Background(), bobID, todo.ID); err == nil {
		t.Fatal("deleting another user's todo should fail")
	}
	if deleted != "" {
		t.Fatal("repository Delete must not be called for another user")
	}

	if err := svc.Delete(context.Background(), aliceID, todo.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted != todo.ID {
		t.Errorf("deleted = %q, want %q", deleted, todo.ID)
	}
}
