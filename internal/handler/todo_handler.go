package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/todo"
)

// TodoServiceInterface はTODOハンドラーが必要とするサービスインターフェース。
type TodoServiceInterface interface {
	List(ctx context.Context, userID string, p todo.ListParams) (model.Page[*model.Todo], error)
	Search(ctx context.Context, userID, query string, p todo.ListParams) (model.Page[*model.Todo], error)
	ListByUser(ctx context.Context, actor todo.Actor, targetUserID string, p todo.ListParams) (model.Page[*model.Todo], error)
	Create(ctx context.Context, userID string, in todo.CreateInput) (*model.Todo, error)
	Get(ctx context.Context, userID, todoID string) (*model.Todo, error)
	Update(ctx context.Context, userID, todoID string, upd model.TodoUpdate) (*model.Todo, error)
	SetCompleted(ctx context.Context, userID, todoID string, completed bool) (*model.Todo, error)
	Delete(ctx context.Context, userID, todoID string) error
}

// TodoHandler はTODO管理のHTTPハンドラー。
type TodoHandler struct {
	service TodoServiceInterface
}

// NewTodoHandler はTodoHandlerを生成する。
func NewTodoHandler(service TodoServiceInterface) *TodoHandler {
	return &TodoHandler{service: service}
}

type createTodoRequest struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

type updateTodoRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=255"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// listParamsFromQuery はクエリパラメータから一覧条件を組み立てる。
// completedが真値なら完了済み、pendingが真値なら未完了に絞り込む。両方ある場合はcompletedを優先する。
// 0・false・空の値は指定なしとして扱う。
func listParamsFromQuery(r *http.Request) todo.ListParams {
	q := r.URL.Query()

	p := todo.ListParams{
		SortBy:        q.Get("sort_by"),
		SortDirection: q.Get("sort_direction"),
		Page:          queryInt(r, "page"),
		PerPage:       queryInt(r, "per_page"),
	}

	switch {
	case queryFlag(r, "completed"):
		completed := true
		p.Completed = &completed
	case queryFlag(r, "pending"):
		completed := false
		p.Completed = &completed
	}

	return p
}

// searchTerm は検索語を返す。searchが無ければ旧名のqueryを参照する。
func searchTerm(r *http.Request) string {
	q := r.URL.Query()
	if v := q.Get("search"); v != "" {
		return v
	}
	return q.Get("query")
}

// List はログインユーザーのTODO一覧を返す。
// GET /todos
func (h *TodoHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	page, err := h.service.List(r.Context(), userID, listParamsFromQuery(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPageResponse(page))
}

// Search はtitleまたはdescriptionでログインユーザーのTODOを検索する。
// GET /todos/search?search=
func (h *TodoHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	page, err := h.service.Search(r.Context(), userID, searchTerm(r), listParamsFromQuery(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPageResponse(page))
}

// ListByUser は指定ユーザーのTODO一覧を所有者の概要付きで返す。
// GET /users/{userId}/todos
func (h *TodoHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	actor := todo.Actor{UserID: userID, Role: middleware.RoleFromContext(r.Context())}
	page, err := h.service.ListByUser(r.Context(), actor, chi.URLParam(r, "userId"), listParamsFromQuery(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPageResponse(page))
}

// Create はTODOを作成する。
// POST /todos
func (h *TodoHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createTodoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := validateStruct(req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	created, err := h.service.Create(r.Context(), userID, todo.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed != nil && *req.Completed,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTodoResponse(created))
}

// Get はTODOを1件返す。
// GET /todos/{id}
func (h *TodoHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	t, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTodoResponse(t))
}

// Update はTODOを部分更新する。
// PUT /todos/{id}
func (h *TodoHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateTodoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := validateStruct(req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	updated, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), model.TodoUpdate{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTodoResponse(updated))
}

// Delete はTODOを削除する。
// DELETE /todos/{id}
func (h *TodoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkComplete はTODOを完了にする。
// PATCH /todos/{id}/complete
func (h *TodoHandler) MarkComplete(w http.ResponseWriter, r *http.Request) {
	h.setCompleted(w, r, true)
}

// MarkPending はTODOを未完了に戻す。
// PATCH /todos/{id}/pending
func (h *TodoHandler) MarkPending(w http.ResponseWriter, r *http.Request) {
	h.setCompleted(w, r, false)
}

func (h *TodoHandler) setCompleted(w http.ResponseWriter, r *http.Request, completed bool) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	t, err := h.service.SetCompleted(r.Context(), userID, chi.URLParam(r, "id"), completed)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTodoResponse(t))
}
