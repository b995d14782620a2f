package pagination

import (
	"errors"
	"math"
	"testing"

	"github.com/harlequingg/task-tracker-api/internal/validator"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name      string
		page      string
		limit     string
		wantPage  int
		wantLimit int
		wantSkip  int
	}{
		{"defaults", "", "", 1, DefaultLimit, 0},
		{"explicit", "3", "20", 3, 20, 40},
		{"page zero", "0", "5", 1, 5, 0},
		{"negative page", "-4", "5", 1, 5, 0},
		{"non-numeric page", "abc", "5", 1, 5, 0},
		{"limit zero", "1", "0", 1, 1, 0},
		{"negative limit", "2", "-10", 2, 1, 1},
		{"limit above cap", "2", "1000", 2, MaxLimit, MaxLimit},
		{"limit at cap", "1", "100", 1, 100, 0},
		{"non-numeric limit", "2", "ten", 2, DefaultLimit, DefaultLimit},
		{"whitespace", " 2 ", " 7 ", 2, 7, 7},
		{"page overflow", "9223372036854775807", "100", math.MaxInt / 100, 100, (math.MaxInt/100 - 1) * 100},
		{"page overflow default limit", "9223372036854775807", "", math.MaxInt / DefaultLimit, DefaultLimit, (math.MaxInt/DefaultLimit - 1) * DefaultLimit},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := Normalize(tc.page, tc.limit)
			if w.Page != tc.wantPage || w.Limit != tc.wantLimit || w.Skip != tc.wantSkip {
				t.Errorf("Normalize(%q, %q) = %+v, want page=%d limit=%d skip=%d",
					tc.page, tc.limit, w, tc.wantPage, tc.wantLimit, tc.wantSkip)
			}
			if err := w.Validate(); err != nil {
				t.Errorf("normalized window failed validation: %v", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	bad := []Window{
		{Skip: 0, Limit: 0, Page: 1},
		{Skip: 0, Limit: 101, Page: 1},
		{Skip: 5, Limit: 10, Page: 1},
		{Skip: 0, Limit: 10, Page: 0},
		{Skip: -200, Limit: 100, Page: math.MaxInt/50 + 1},
	}
	for _, w := range bad {
		if err := w.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", w)
		}
	}
}

func TestNewMeta(t *testing.T) {
	testCases := []struct {
		total     int64
		limit     int
		wantPages int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 10, 3},
		{100, 1, 100},
	}
	for _, tc := range testCases {
		w := Normalize("2", "")
		w.Limit = tc.limit
		m := NewMeta(w, tc.total)
		if m.TotalPages != tc.wantPages {
			t.Errorf("NewMeta(total=%d, limit=%d).TotalPages = %d, want %d", tc.total, tc.limit, m.TotalPages, tc.wantPages)
		}
		if m.TotalItems != tc.total || m.ItemsPerPage != tc.limit || m.CurrentPage != 2 {
			t.Errorf("unexpected meta %+v", m)
		}
	}
}

func TestParseSort(t *testing.T) {
	testCases := []struct {
		raw     string
		want    Sort
		wantErr bool
	}{
		{"", DefaultSort, false},
		{"dueDate:asc", Sort{Field: SortDueDate}, false},
		{"priority:desc", Sort{Field: SortPriority, Desc: true}, false},
		{"title", Sort{Field: SortTitle}, false},
		{"password:asc", Sort{}, true},
		{"createdAt:sideways", Sort{}, true},
		{"$where:asc", Sort{}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseSort(tc.raw)
			if tc.wantErr {
				var verr *validator.Error
				if !errors.As(err, &verr) {
					t.Fatalf("ParseSort(%q) error = %v, want *validator.Error", tc.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSort(%q): %v", tc.raw, err)
			}
			if got != tc.want {
				t.Errorf("ParseSort(%q) = %+v, want %+v", tc.raw, got, tc.want)
			}
		})
	}
}
