package scope

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/validator"
)

const (
	adminID  = "00000000-0000-0000-0000-00000000000a"
	memberA  = "00000000-0000-0000-0000-0000000000a1"
	memberB  = "00000000-0000-0000-0000-0000000000b1"
	taskOwnA = "10000000-0000-0000-0000-000000000001"
	taskToA  = "10000000-0000-0000-0000-000000000002"
	taskOwnB = "10000000-0000-0000-0000-000000000003"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixture() []models.Task {
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)
	return []models.Task{
		{ID: taskOwnA, Title: "Write quarterly Report", Status: models.StatusTodo, Priority: models.PriorityHigh, CreatedBy: memberA, DueDate: &past},
		{ID: taskToA, Title: "Review", Description: "check the DRAFT", Status: models.StatusDone, Priority: models.PriorityLow, CreatedBy: memberB, Assignee: memberA, DueDate: &past, Tags: []string{"ops"}},
		{ID: taskOwnB, Title: "a.*b", Status: models.StatusInProgress, Priority: models.PriorityMedium, CreatedBy: memberB, DueDate: &future, Tags: []string{"Backend"}},
	}
}

func matchingIDs(pred Predicate, tasks []models.Task) map[string]bool {
	ids := make(map[string]bool)
	for i := range tasks {
		if pred.Match(&tasks[i]) {
			ids[tasks[i].ID] = true
		}
	}
	return ids
}

func TestResolve_Visibility(t *testing.T) {
	tasks := fixture()
	testCases := []struct {
		name      string
		principal models.Principal
		want      []string
	}{
		{"member sees created and assigned", models.Principal{ID: memberA, Role: models.RoleMember}, []string{taskOwnA, taskToA}},
		{"member sees only own", models.Principal{ID: memberB, Role: models.RoleMember}, []string{taskToA, taskOwnB}},
		{"unrelated member sees nothing", models.Principal{ID: "20000000-0000-0000-0000-000000000000", Role: models.RoleMember}, nil},
		{"admin sees all", models.Principal{ID: adminID, Role: models.RoleAdmin}, []string{taskOwnA, taskToA, taskOwnB}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := matchingIDs(Resolve(tc.principal, Filters{}), tasks)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for _, id := range tc.want {
				if !got[id] {
					t.Errorf("missing task %s in %v", id, got)
				}
			}
		})
	}
}

func TestResolve_FiltersNeverWiden(t *testing.T) {
	tasks := fixture()
	b := models.Principal{ID: memberB, Role: models.RoleMember}

	// taskOwnA is assigned to nobody and created by A: a filter on A's id
	// must not reveal it to B.
	got := matchingIDs(Resolve(b, Filters{Assignee: memberA}), tasks)
	if len(got) != 1 || !got[taskToA] {
		t.Errorf("got %v, want only %s", got, taskToA)
	}

	got = matchingIDs(Resolve(b, Filters{Priority: models.PriorityHigh}), tasks)
	if len(got) != 0 {
		t.Errorf("high priority for B: got %v, want none", got)
	}
}

func TestResolve_Filters(t *testing.T) {
	tasks := fixture()
	admin := models.Principal{ID: adminID, Role: models.RoleAdmin}
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	testCases := []struct {
		name    string
		filters Filters
		want    []string
	}{
		{"status", Filters{Status: models.StatusDone}, []string{taskToA}},
		{"priority", Filters{Priority: models.PriorityMedium}, []string{taskOwnB}},
		{"assignee", Filters{Assignee: memberA}, []string{taskToA}},
		{"due from inclusive", Filters{DueDateFrom: &future}, []string{taskOwnB}},
		{"due to inclusive", Filters{DueDateTo: &past}, []string{taskOwnA, taskToA}},
		{"due range", Filters{DueDateFrom: &past, DueDateTo: &future}, []string{taskOwnA, taskToA, taskOwnB}},
		{"search title case-insensitive", Filters{Search: "report"}, []string{taskOwnA}},
		{"search description", Filters{Search: "draft"}, []string{taskToA}},
		{"search tags", Filters{Search: "backend"}, []string{taskOwnB}},
		{"search is literal", Filters{Search: ".*"}, []string{taskOwnB}},
		{"search and status", Filters{Search: "re", Status: models.StatusDone}, []string{taskToA}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := matchingIDs(Resolve(admin, tc.filters), tasks)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for _, id := range tc.want {
				if !got[id] {
					t.Errorf("missing task %s in %v", id, got)
				}
			}
		})
	}
}

func TestSingleEntityScope(t *testing.T) {
	tasks := fixture()
	a := models.Principal{ID: memberA, Role: models.RoleMember}
	admin := models.Principal{ID: adminID, Role: models.RoleAdmin}
	assigned := &tasks[1]

	if !ForRead(a, taskToA).Match(assigned) {
		t.Error("assignee should be able to read the task")
	}
	if ForWrite(a, taskToA).Match(assigned) {
		t.Error("assignee must not be able to modify the task")
	}
	if !ForWrite(admin, taskToA).Match(assigned) {
		t.Error("admin should be able to modify any task")
	}
	if ForRead(admin, taskOwnA).Match(assigned) {
		t.Error("id predicate matched another task")
	}
	if id, ok := ForWrite(a, taskToA).ID(); !ok || id != taskToA {
		t.Errorf("ID() = %q, %v", id, ok)
	}
}

func TestOverdue(t *testing.T) {
	tasks := fixture()
	admin := models.Principal{ID: adminID, Role: models.RoleAdmin}
	base := Resolve(admin, Filters{})
	overdue := base.Overdue(now)

	got := matchingIDs(overdue, tasks)
	// taskToA is past due but done.
	if len(got) != 1 || !got[taskOwnA] {
		t.Errorf("got %v, want only %s", got, taskOwnA)
	}
	if _, ok := base.OverdueAt(); ok {
		t.Error("Overdue modified the receiver")
	}
}

func TestSearchPatterns(t *testing.T) {
	pred := Resolve(models.Principal{ID: adminID, Role: models.RoleAdmin}, Filters{Search: `50%_o\ff (x)`})
	if got, want := pred.SearchLike(), `%50\%\_o\\ff (x)%`; got != want {
		t.Errorf("SearchLike() = %q, want %q", got, want)
	}
	if got, want := pred.SearchRegex(), `50%_o\\ff \(x\)`; got != want {
		t.Errorf("SearchRegex() = %q, want %q", got, want)
	}
	if Resolve(models.Principal{}, Filters{Search: "   "}).HasSearch() {
		t.Error("blank search should be ignored")
	}
}

func TestActivityActor(t *testing.T) {
	if got := ActivityActor(models.Principal{ID: adminID, Role: models.RoleAdmin}); got != "" {
		t.Errorf("admin actor = %q, want empty", got)
	}
	if got := ActivityActor(models.Principal{ID: memberA, Role: models.RoleMember}); got != memberA {
		t.Errorf("member actor = %q, want %q", got, memberA)
	}
}

func TestParseFilters(t *testing.T) {
	q := url.Values{
		"status":      {"in-progress"},
		"priority":    {"high"},
		"assignee":    {memberA},
		"dueDateFrom": {"2026-03-01T00:00:00Z"},
		"dueDateTo":   {"2026-03-02"},
		"search":      {"  report "},
	}
	f, err := ParseFilters(q)
	if err != nil {
		t.Fatalf("ParseFilters: %v", err)
	}
	if f.Status != models.StatusInProgress || f.Priority != models.PriorityHigh || f.Assignee != memberA {
		t.Errorf("unexpected filters: %+v", f)
	}
	if f.Search != "report" {
		t.Errorf("Search = %q", f.Search)
	}
	wantTo := time.Date(2026, 3, 2, 23, 59, 59, 999999999, time.UTC)
	if f.DueDateTo == nil || !f.DueDateTo.Equal(wantTo) {
		t.Errorf("DueDateTo = %v, want %v", f.DueDateTo, wantTo)
	}
}

func TestParseFilters_Invalid(t *testing.T) {
	q := url.Values{
		"status":      {"archived"},
		"priority":    {"urgent"},
		"assignee":    {`{"$ne": null}`},
		"dueDateFrom": {"yesterday"},
	}
	_, err := ParseFilters(q)
	var verr *validator.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *validator.Error, got %v", err)
	}
	for _, key := range []string{"status", "priority", "assignee", "dueDateFrom"} {
		if _, ok := verr.Fields[key]; !ok {
			t.Errorf("missing error for %s: %v", key, verr.Fields)
		}
	}
}
