package model

import (
	"math"
	"testing"
)

func TestNewPage_FirstPage(t *testing.T) {
	p := NewPage([]string{"a", "b"}, 5, 1, 2)

	if p.LastPage != 3 {
		t.Errorf("LastPage = %d, want 3", p.LastPage)
	}
	if p.From == nil || *p.From != 1 {
		t.Errorf("From = %v, want 1", p.From)
	}
	if p.To == nil || *p.To != 2 {
		t.Errorf("To = %v, want 2", p.To)
	}
}

func TestNewPage_LastPartialPage(t *testing.T) {
	p := NewPage([]string{"e"}, 5, 3, 2)

	if p.From == nil || *p.From != 5 {
		t.Errorf("From = %v, want 5", p.From)
	}
	if p.To == nil || *p.To != 5 {
		t.Errorf("To = %v, want 5", p.To)
	}
}

func TestNewPage_Empty(t *testing.T) {
	p := NewPage[string](nil, 0, 1, 10)

	if p.Data == nil {
		t.Error("Data should be an empty slice, not nil")
	}
	if p.LastPage != 1 {
		t.Errorf("LastPage = %d, want 1", p.LastPage)
	}
	if p.From != nil || p.To != nil {
		t.Errorf("From/To = %v/%v, want nil/nil", p.From, p.To)
	}
}

func TestAPIError_ErrorIncludesFieldNames(t *testing.T) {
	err := NewValidationError(map[string][]string{
		"otp":   {"The otp must be 6 digits."},
		"email": {"The email field is required."},
	})

	want := "[VALIDATION_FAILED] The given data was invalid. (email, otp)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestTodoListQuery_Offset(t *testing.T) {
	tests := []struct {
		name    string
		page    int
		perPage int
		want    int
	}{
		{"first page", 1, 10, 0},
		{"third page", 3, 10, 20},
		{"page below one", 0, 10, 0},
		{"zero per page", 5, 0, 0},
		{"overflow saturates", math.MaxInt, 100, math.MaxInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TodoListQuery{Page: tt.page, PerPage: tt.perPage}.Offset()
			if got != tt.want {
				t.Errorf("Offset() = %d, want %d", got, tt.want)
			}
		})
	}
}
