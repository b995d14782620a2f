package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/pagination"
	"github.com/harlequingg/task-tracker-api/internal/scope"
	"github.com/harlequingg/task-tracker-api/internal/storage"
)

var sortKeys = map[pagination.SortField]string{
	pagination.SortCreatedAt: "createdAt",
	pagination.SortUpdatedAt: "updatedAt",
	pagination.SortDueDate:   "dueDate",
	pagination.SortPriority:  "priority",
	pagination.SortStatus:    "status",
	pagination.SortTitle:     "title",
}

var groupKeys = map[storage.GroupField]string{
	storage.GroupByStatus:   "status",
	storage.GroupByPriority: "priority",
}

// taskFilter renders pred as a query document. Conditions are collected
// under $and so that two constraints on one key never overwrite each
// other. User values only ever appear as operands.
func taskFilter(pred scope.Predicate) bson.D {
	var conds []bson.D
	if id, ok := pred.ID(); ok {
		conds = append(conds, bson.D{{Key: "_id", Value: id}})
	}
	switch pred.Visibility() {
	case scope.VisibleOwnedOrAssigned:
		conds = append(conds, bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "createdBy", Value: pred.PrincipalID()}},
			bson.D{{Key: "assignee", Value: pred.PrincipalID()}},
		}}})
	case scope.VisibleOwned:
		conds = append(conds, bson.D{{Key: "createdBy", Value: pred.PrincipalID()}})
	}
	if s, ok := pred.Status(); ok {
		conds = append(conds, bson.D{{Key: "status", Value: string(s)}})
	}
	if p, ok := pred.Priority(); ok {
		conds = append(conds, bson.D{{Key: "priority", Value: string(p)}})
	}
	if a, ok := pred.Assignee(); ok {
		conds = append(conds, bson.D{{Key: "assignee", Value: a}})
	}
	var due bson.D
	if t, ok := pred.DueDateFrom(); ok {
		due = append(due, bson.E{Key: "$gte", Value: t})
	}
	if t, ok := pred.DueDateTo(); ok {
		due = append(due, bson.E{Key: "$lte", Value: t})
	}
	if len(due) > 0 {
		conds = append(conds, bson.D{{Key: "dueDate", Value: due}})
	}
	if t, ok := pred.OverdueAt(); ok {
		conds = append(conds,
			bson.D{{Key: "dueDate", Value: bson.D{{Key: "$lt", Value: t}}}},
			bson.D{{Key: "status", Value: bson.D{{Key: "$ne", Value: string(models.StatusDone)}}}},
		)
	}
	if pred.HasSearch() {
		re := primitive.Regex{Pattern: pred.SearchRegex(), Options: "i"}
		conds = append(conds, bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "title", Value: re}},
			bson.D{{Key: "description", Value: re}},
			bson.D{{Key: "tags", Value: re}},
		}}})
	}
	switch len(conds) {
	case 0:
		return bson.D{}
	case 1:
		return conds[0]
	}
	and := make(bson.A, len(conds))
	for i, c := range conds {
		and[i] = c
	}
	return bson.D{{Key: "$and", Value: and}}
}

func taskSort(s pagination.Sort) bson.D {
	key, ok := sortKeys[s.Field]
	if !ok {
		key = sortKeys[pagination.SortCreatedAt]
	}
	dir := 1
	if s.Desc {
		dir = -1
	}
	return bson.D{{Key: key, Value: dir}, {Key: "_id", Value: dir}}
}

// taskUpdate renders the submitted fields of patch as an update document.
// Cleared nullable fields are unset.
func taskUpdate(patch *models.TaskPatch, now time.Time) bson.D {
	set := bson.D{}
	unset := bson.D{}
	if patch.Title != nil {
		set = append(set, bson.E{Key: "title", Value: *patch.Title})
	}
	if patch.Description != nil {
		set = append(set, bson.E{Key: "description", Value: *patch.Description})
	}
	if patch.Status != nil {
		set = append(set, bson.E{Key: "status", Value: string(*patch.Status)})
	}
	if patch.Priority != nil {
		set = append(set, bson.E{Key: "priority", Value: string(*patch.Priority)})
	}
	if patch.DueDate != nil {
		if patch.DueDate.Valid {
			set = append(set, bson.E{Key: "dueDate", Value: patch.DueDate.Time})
		} else {
			unset = append(unset, bson.E{Key: "dueDate", Value: ""})
		}
	}
	if patch.Tags != nil {
		set = append(set, bson.E{Key: "tags", Value: *patch.Tags})
	}
	if patch.Assignee != nil {
		if patch.Assignee.Valid {
			set = append(set, bson.E{Key: "assignee", Value: patch.Assignee.String})
		} else {
			unset = append(unset, bson.E{Key: "assignee", Value: ""})
		}
	}
	set = append(set, bson.E{Key: "updatedAt", Value: now})
	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
	}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	return update
}

func groupPipeline(pred scope.Predicate, key string) bson.A {
	return bson.A{
		bson.D{{Key: "$match", Value: taskFilter(pred)}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + key},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
}
