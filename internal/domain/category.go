package domain

import "time"

// CategoryKind tells which P&L side a category belongs to.
type CategoryKind string

const (
	CategoryIncome  CategoryKind = "income"
	CategoryExpense CategoryKind = "expense"
)

// ParseCategoryKind validates a raw category kind.
func ParseCategoryKind(s string) (CategoryKind, error) {
	switch k := CategoryKind(s); k {
	case CategoryIncome, CategoryExpense:
		return k, nil
	}
	return "", &ErrValidation{Field: "kind", Message: "unknown category kind " + quote(s)}
}

// Category groups income and expense lines for reporting.
type Category struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Name      string       `json:"name"`
	Kind      CategoryKind `json:"kind"`
	CreatedAt time.Time    `json:"created_at"`
}

// CreateCategoryRequest is the payload for creating a category.
type CreateCategoryRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// IndexCategories builds an id lookup.
func IndexCategories(categories []Category) map[string]Category {
	idx := make(map[string]Category, len(categories))
	for _, c := range categories {
		idx[c.ID] = c
	}
	return idx
}
