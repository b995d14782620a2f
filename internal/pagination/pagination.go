package pagination

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/harlequingg/task-tracker-api/internal/validator"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Window is a bounded offset/limit pair.
type Window struct {
	Skip  int
	Limit int
	Page  int
}

// Normalize turns raw page and limit input into a Window. A missing or
// non-numeric page becomes 1, as does any page below 1. A missing or
// non-numeric limit becomes DefaultLimit; numeric limits are clamped to
// [1, MaxLimit]. Pages too large for their offset to be represented are
// clamped to the largest one that is.
func Normalize(rawPage, rawLimit string) Window {
	page, err := strconv.Atoi(strings.TrimSpace(rawPage))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(strings.TrimSpace(rawLimit))
	switch {
	case err != nil:
		limit = DefaultLimit
	case limit < 1:
		limit = 1
	case limit > MaxLimit:
		limit = MaxLimit
	}
	if page > math.MaxInt/limit {
		page = math.MaxInt / limit
	}
	return Window{
		Skip:  (page - 1) * limit,
		Limit: limit,
		Page:  page,
	}
}

// Validate rejects windows that Normalize can never produce.
func (w Window) Validate() error {
	if w.Limit < 1 || w.Limit > MaxLimit {
		return errors.New("pagination: limit out of range")
	}
	if w.Page < 1 || w.Page > math.MaxInt/w.Limit || w.Skip < 0 || w.Skip != (w.Page-1)*w.Limit {
		return errors.New("pagination: inconsistent page and skip")
	}
	return nil
}

type Meta struct {
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int   `json:"totalPages"`
	TotalItems   int64 `json:"totalItems"`
	ItemsPerPage int   `json:"itemsPerPage"`
}

// NewMeta describes w against total matching items.
func NewMeta(w Window, total int64) Meta {
	pages := 0
	if total > 0 {
		pages = int((total + int64(w.Limit) - 1) / int64(w.Limit))
	}
	return Meta{
		CurrentPage:  w.Page,
		TotalPages:   pages,
		TotalItems:   total,
		ItemsPerPage: w.Limit,
	}
}

type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortDueDate   SortField = "dueDate"
	SortPriority  SortField = "priority"
	SortStatus    SortField = "status"
	SortTitle     SortField = "title"
)

var sortFields = map[SortField]bool{
	SortCreatedAt: true,
	SortUpdatedAt: true,
	SortDueDate:   true,
	SortPriority:  true,
	SortStatus:    true,
	SortTitle:     true,
}

type Sort struct {
	Field SortField
	Desc  bool
}

// DefaultSort orders newest first.
var DefaultSort = Sort{Field: SortCreatedAt, Desc: true}

// ParseSort reads a "field:asc|desc" expression. An empty expression
// yields DefaultSort; a missing order is ascending.
func ParseSort(raw string) (Sort, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultSort, nil
	}
	field, order, _ := strings.Cut(raw, ":")
	v := validator.New()
	s := Sort{Field: SortField(field)}
	v.Check(sortFields[s.Field], "sort", "unknown sort field")
	switch order {
	case "", "asc":
	case "desc":
		s.Desc = true
	default:
		v.Check(false, "sort", "order must be asc or desc")
	}
	if err := v.Err(); err != nil {
		return Sort{}, err
	}
	return s, nil
}
