// Package model はドメインモデルを定義する。
package model

// Page はオフセットベースのページネーション結果を表す。
type Page[T any] struct {
	Data        []T
	CurrentPage int
	PerPage     int
	Total       int
	LastPage    int

	// From, To は表示中の1始まりの範囲。空ページではnil。
	From *int
	To   *int
}

// NewPage はページ情報を計算してPageを生成する。
// dataが空でもData は空スライスとして保持する。
func NewPage[T any](data []T, total, page, perPage int) Page[T] {
	if data == nil {
		data = []T{}
	}
	if perPage < 1 {
		perPage = 1
	}
	if page < 1 {
		page = 1
	}

	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}

	p := Page[T]{
		Data:        data,
		CurrentPage: page,
		PerPage:     perPage,
		Total:       total,
		LastPage:    lastPage,
	}

	if len(data) > 0 {
		from := (page-1)*perPage + 1
		to := from + len(data) - 1
		p.From = &from
		p.To = &to
	}

	return p
}
