// Package mongodb stores users, tasks and activity in MongoDB, one
// collection each.
package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/pagination"
	"github.com/harlequingg/task-tracker-api/internal/scope"
	"github.com/harlequingg/task-tracker-api/internal/storage"
)

type Config struct {
	URI      string
	Database string
}

type taskDoc struct {
	ID          string     `bson:"_id"`
	Title       string     `bson:"title"`
	Description string     `bson:"description"`
	Status      string     `bson:"status"`
	Priority    string     `bson:"priority"`
	DueDate     *time.Time `bson:"dueDate,omitempty"`
	Tags        []string   `bson:"tags"`
	Assignee    string     `bson:"assignee,omitempty"`
	CreatedBy   string     `bson:"createdBy"`
	CreatedAt   time.Time  `bson:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt"`
	Version     int        `bson:"version"`
}

func (d *taskDoc) task() models.Task {
	t := models.Task{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Status:      models.Status(d.Status),
		Priority:    models.Priority(d.Priority),
		DueDate:     d.DueDate,
		Tags:        d.Tags,
		Assignee:    d.Assignee,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		Version:     d.Version,
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return t
}

type userDoc struct {
	ID           string    `bson:"_id"`
	CreatedAt    time.Time `bson:"createdAt"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash []byte    `bson:"passwordHash"`
	Role         string    `bson:"role"`
	Version      int       `bson:"version"`
}

func (d *userDoc) user() models.User {
	return models.User{
		ID:           d.ID,
		CreatedAt:    d.CreatedAt,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         models.Role(d.Role),
		Version:      d.Version,
	}
}

type activityDoc struct {
	ID        string         `bson:"_id"`
	TaskID    string         `bson:"taskId"`
	UserID    string         `bson:"userId"`
	Action    string         `bson:"action"`
	Changes   map[string]any `bson:"changes"`
	Timestamp time.Time      `bson:"timestamp"`
}

type Store struct {
	client   *mongo.Client
	tasks    *mongo.Collection
	users    *mongo.Collection
	activity *mongo.Collection
}

var _ storage.Store = (*Store)(nil)

// Open connects, pings the primary and creates the indexes.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*storage.QueryTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:   client,
		tasks:    db.Collection("tasks"),
		users:    db.Collection("users"),
		activity: db.Collection("activity_logs"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = s.tasks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdBy", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "assignee", Value: 1}}},
		{Keys: bson.D{{Key: "dueDate", Value: 1}}},
		{Keys: bson.D{{Key: "priority", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.activity.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "taskId", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	})
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// now truncates to the millisecond precision MongoDB stores.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (s *Store) InsertTask(ctx context.Context, t *models.Task) error {
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	ts := now()
	t.CreatedAt, t.UpdatedAt, t.Version = ts, ts, 1
	doc := taskDoc{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		DueDate:     t.DueDate,
		Tags:        t.Tags,
		Assignee:    t.Assignee,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Version:     t.Version,
	}
	_, err := s.tasks.InsertOne(ctx, doc)
	return err
}

func (s *Store) FindTasks(ctx context.Context, pred scope.Predicate, sort pagination.Sort, w pagination.Window) ([]models.Task, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(taskSort(sort)).
		SetSkip(int64(w.Skip)).
		SetLimit(int64(w.Limit))
	cur, err := s.tasks.Find(ctx, taskFilter(pred), opts)
	if err != nil {
		return nil, err
	}
	var docs []taskDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	tasks := make([]models.Task, 0, len(docs))
	for i := range docs {
		tasks = append(tasks, docs[i].task())
	}
	return tasks, nil
}

func (s *Store) CountTasks(ctx context.Context, pred scope.Predicate) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	return s.tasks.CountDocuments(ctx, taskFilter(pred))
}

// singleTask decodes r, mapping no documents to a nil task.
func singleTask(r *mongo.SingleResult) (*models.Task, error) {
	var doc taskDoc
	err := r.Decode(&doc)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return nil, nil
		default:
			return nil, err
		}
	}
	t := doc.task()
	return &t, nil
}

func (s *Store) GetTask(ctx context.Context, pred scope.Predicate) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	return singleTask(s.tasks.FindOne(ctx, taskFilter(pred)))
}

func (s *Store) UpdateTask(ctx context.Context, pred scope.Predicate, patch *models.TaskPatch) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	return singleTask(s.tasks.FindOneAndUpdate(ctx, taskFilter(pred), taskUpdate(patch, now()), opts))
}

func (s *Store) DeleteTask(ctx context.Context, pred scope.Predicate) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	return singleTask(s.tasks.FindOneAndDelete(ctx, taskFilter(pred)))
}

func (s *Store) GroupCountTasks(ctx context.Context, pred scope.Predicate, field storage.GroupField) (map[string]int64, error) {
	key, ok := groupKeys[field]
	if !ok {
		return nil, errors.New("mongodb: unsupported group field " + string(field))
	}
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	cur, err := s.tasks.Aggregate(ctx, groupPipeline(pred, key))
	if err != nil {
		return nil, err
	}
	var groups []struct {
		ID    string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cur.All(ctx, &groups); err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(groups))
	for _, g := range groups {
		counts[g.ID] = g.Count
	}
	return counts, nil
}

func (s *Store) TaskTitles(ctx context.Context, ids []string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}
	opts := options.Find().SetProjection(bson.D{{Key: "title", Value: 1}})
	cur, err := s.tasks.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []struct {
		ID    string `bson:"_id"`
		Title string `bson:"title"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(docs))
	for _, d := range docs {
		titles[d.ID] = d.Title
	}
	return titles, nil
}

func (s *Store) InsertUser(ctx context.Context, u *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = models.RoleMember
	}
	u.CreatedAt = now()
	u.Version = 1
	doc := userDoc{
		ID:           u.ID,
		CreatedAt:    u.CreatedAt,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Version:      u.Version,
	}
	_, err := s.users.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return models.ErrDuplicateEmail
	}
	return err
}

func singleUser(r *mongo.SingleResult) (*models.User, error) {
	var doc userDoc
	err := r.Decode(&doc)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return nil, nil
		default:
			return nil, err
		}
	}
	u := doc.user()
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	return singleUser(s.users.FindOne(ctx, bson.D{{Key: "_id", Value: id}}))
}

// GetUserByEmail expects emails to be stored lower-cased.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	return singleUser(s.users.FindOne(ctx, bson.D{{Key: "email", Value: email}}))
}

func (s *Store) ListUsers(ctx context.Context, w pagination.Window) ([]models.User, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(w.Skip)).
		SetLimit(int64(w.Limit))
	cur, err := s.users.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].user())
	}
	return users, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	return s.users.CountDocuments(ctx, bson.D{})
}

func (s *Store) UpdateUserRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "role", Value: string(role)}}},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	return singleUser(s.users.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, update, opts))
}

func (s *Store) LookupUsers(ctx context.Context, ids []string) (map[string]models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	cur, err := s.users.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make(map[string]models.User, len(docs))
	for i := range docs {
		users[docs[i].ID] = docs[i].user()
	}
	return users, nil
}

func (s *Store) InsertActivity(ctx context.Context, l *models.ActivityLog) error {
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	doc := activityDoc{
		ID:        l.ID,
		TaskID:    l.TaskID,
		UserID:    l.UserID,
		Action:    string(l.Action),
		Changes:   l.Changes,
		Timestamp: l.Timestamp,
	}
	_, err := s.activity.InsertOne(ctx, doc)
	return err
}

func (s *Store) RecentActivity(ctx context.Context, actorID string, limit int) ([]models.ActivityLog, error) {
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	filter := bson.D{}
	if actorID != "" {
		filter = bson.D{{Key: "userId", Value: actorID}}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.activity.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []activityDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	logs := make([]models.ActivityLog, 0, len(docs))
	for _, d := range docs {
		logs = append(logs, models.ActivityLog{
			ID:        d.ID,
			TaskID:    d.TaskID,
			UserID:    d.UserID,
			Action:    models.Action(d.Action),
			Changes:   d.Changes,
			Timestamp: d.Timestamp,
		})
	}
	return logs, nil
}
