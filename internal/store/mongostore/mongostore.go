// Package mongostore implements the store repositories on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/celerix-dev/celerix-tasks/internal/store"
)

// Store serves every repository from one MongoDB database.
type Store struct {
	client        *mongo.Client
	db            *mongo.Database
	users         *userRepo
	workflows     *workflowRepo
	tasks         *taskRepo
	activity      *activityRepo
	notifications *notificationRepo
}

var _ store.Store = (*Store)(nil)

// Open connects to uri, verifies the connection and ensures indexes exist.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	s := New(client, database)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// New wraps a connected client. It does not create indexes.
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:        client,
		db:            db,
		users:         &userRepo{coll: db.Collection(store.CollectionUsers)},
		workflows:     &workflowRepo{coll: db.Collection(store.CollectionWorkflows)},
		tasks:         &taskRepo{coll: db.Collection(store.CollectionTasks)},
		activity:      &activityRepo{coll: db.Collection(store.CollectionActivity)},
		notifications: &notificationRepo{coll: db.Collection(store.CollectionNotifications)},
	}
}

func (s *Store) Users() store.UserRepository                 { return s.users }
func (s *Store) Workflows() store.WorkflowRepository         { return s.workflows }
func (s *Store) Tasks() store.TaskRepository                 { return s.tasks }
func (s *Store) Activity() store.ActivityRepository          { return s.activity }
func (s *Store) Notifications() store.NotificationRepository { return s.notifications }

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes every collection is queried by.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for name, models := range indexModels() {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("creating %s indexes: %w", name, err)
		}
	}
	return nil
}

func indexModels() map[string][]mongo.IndexModel {
	asc := func(keys ...string) mongo.IndexModel {
		d := bson.D{}
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: 1})
		}
		return mongo.IndexModel{Keys: d}
	}
	return map[string][]mongo.IndexModel{
		store.CollectionUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			asc("role"),
		},
		store.CollectionWorkflows: {
			asc("createdBy"),
			asc("isDefault"),
			asc("projectId"),
		},
		store.CollectionTasks: {
			asc("assignedTo"),
			asc("currentStage"),
			asc("dueDate"),
			asc("priority"),
			asc("workflowId"),
			asc("createdBy"),
			asc("projectId"),
			asc("tags"),
			asc("completedAt"),
		},
		store.CollectionActivity: {
			{Keys: bson.D{{Key: "taskId", Value: 1}, {Key: "createdAt", Value: -1}}},
			asc("userId"),
			asc("action"),
		},
		store.CollectionNotifications: {
			asc("userId", "read"),
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
			asc("type"),
		},
	}
}

// newestFirst is the sort every listing uses.
var newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}

func translate(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	return err
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter any) (*T, error) {
	var v T
	if err := coll.FindOne(ctx, filter).Decode(&v); err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any, opts *options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func replaceByID(ctx context.Context, coll *mongo.Collection, id string, v any) error {
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, v)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func deleteByID(ctx context.Context, coll *mongo.Collection, id string) error {
	res, err := coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
