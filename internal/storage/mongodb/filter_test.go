package mongodb

import (
	"database/sql"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/pagination"
	"github.com/harlequingg/task-tracker-api/internal/scope"
)

var (
	member = models.Principal{ID: "u1", Role: models.RoleMember}
	admin  = models.Principal{ID: "root", Role: models.RoleAdmin}
)

func TestTaskFilter(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ownedOrAssigned := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "createdBy", Value: "u1"}},
		bson.D{{Key: "assignee", Value: "u1"}},
	}}}
	testCases := []struct {
		name string
		pred scope.Predicate
		want bson.D
	}{
		{
			name: "admin without filters",
			pred: scope.Resolve(admin, scope.Filters{}),
			want: bson.D{},
		},
		{
			name: "member list",
			pred: scope.Resolve(member, scope.Filters{}),
			want: ownedOrAssigned,
		},
		{
			name: "member write",
			pred: scope.ForWrite(member, "t1"),
			want: bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "_id", Value: "t1"}},
				bson.D{{Key: "createdBy", Value: "u1"}},
			}}},
		},
		{
			name: "filter on assignee keeps scope",
			pred: scope.Resolve(member, scope.Filters{Assignee: "u2"}),
			want: bson.D{{Key: "$and", Value: bson.A{
				ownedOrAssigned,
				bson.D{{Key: "assignee", Value: "u2"}},
			}}},
		},
		{
			name: "due range",
			pred: scope.Resolve(admin, scope.Filters{DueDateFrom: &now, DueDateTo: &now}),
			want: bson.D{{Key: "dueDate", Value: bson.D{{Key: "$gte", Value: now}, {Key: "$lte", Value: now}}}},
		},
		{
			name: "overdue",
			pred: scope.Resolve(admin, scope.Filters{}).Overdue(now),
			want: bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "dueDate", Value: bson.D{{Key: "$lt", Value: now}}}},
				bson.D{{Key: "status", Value: bson.D{{Key: "$ne", Value: "done"}}}},
			}}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := taskFilter(tc.pred); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("taskFilter =\n%#v\nwant\n%#v", got, tc.want)
			}
		})
	}
}

func TestTaskFilter_SearchIsLiteral(t *testing.T) {
	got := taskFilter(scope.Resolve(admin, scope.Filters{Search: "a.*(b"}))
	re := primitive.Regex{Pattern: `a\.\*\(b`, Options: "i"}
	want := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "title", Value: re}},
		bson.D{{Key: "description", Value: re}},
		bson.D{{Key: "tags", Value: re}},
	}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("taskFilter =\n%#v\nwant\n%#v", got, want)
	}
}

func TestTaskSort(t *testing.T) {
	got := taskSort(pagination.Sort{Field: pagination.SortPriority, Desc: true})
	want := bson.D{{Key: "priority", Value: -1}, {Key: "_id", Value: -1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("taskSort = %#v", got)
	}
	if got := taskSort(pagination.Sort{Field: "passwordHash"}); got[0].Key != "createdAt" {
		t.Errorf("unknown field sorted by %q", got[0].Key)
	}
}

func TestTaskUpdate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	title := "new"
	got := taskUpdate(&models.TaskPatch{
		Title:    &title,
		DueDate:  &sql.NullTime{},
		Assignee: &sql.NullString{String: "u2", Valid: true},
	}, now)
	want := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "title", Value: "new"},
			{Key: "assignee", Value: "u2"},
			{Key: "updatedAt", Value: now},
		}},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
		{Key: "$unset", Value: bson.D{{Key: "dueDate", Value: ""}}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("taskUpdate =\n%#v\nwant\n%#v", got, want)
	}

	empty := taskUpdate(&models.TaskPatch{}, now)
	if len(empty) != 2 {
		t.Errorf("empty patch should only touch updatedAt and version: %#v", empty)
	}
}

func TestGroupPipeline(t *testing.T) {
	got := groupPipeline(scope.Resolve(member, scope.Filters{}), "status")
	if len(got) != 2 {
		t.Fatalf("pipeline has %d stages", len(got))
	}
	group := got[1].(bson.D)[0]
	if group.Key != "$group" {
		t.Errorf("second stage = %q", group.Key)
	}
	if id := group.Value.(bson.D)[0]; id.Value != "$status" {
		t.Errorf("group key = %v", id.Value)
	}
}
