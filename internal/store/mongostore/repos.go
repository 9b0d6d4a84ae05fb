package mongostore

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/celerix-dev/celerix-tasks/internal/store"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

type userRepo struct {
	coll *mongo.Collection
}

func (r *userRepo) Create(ctx context.Context, u *schema.User) error {
	_, err := r.coll.InsertOne(ctx, u)
	return translate(err)
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*schema.User, error) {
	return findOne[schema.User](ctx, r.coll, bson.M{"_id": id})
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*schema.User, error) {
	return findOne[schema.User](ctx, r.coll, bson.M{"email": email})
}

func (r *userRepo) ListByIDs(ctx context.Context, ids []string) ([]schema.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return findAll[schema.User](ctx, r.coll, bson.M{"_id": bson.M{"$in": ids}}, options.Find())
}

type workflowRepo struct {
	coll *mongo.Collection
}

func (r *workflowRepo) Create(ctx context.Context, w *schema.Workflow) error {
	_, err := r.coll.InsertOne(ctx, w)
	return translate(err)
}

func (r *workflowRepo) Get(ctx context.Context, id string) (*schema.Workflow, error) {
	return findOne[schema.Workflow](ctx, r.coll, bson.M{"_id": id})
}

func (r *workflowRepo) List(ctx context.Context, filter store.WorkflowFilter) ([]schema.Workflow, error) {
	return findAll[schema.Workflow](ctx, r.coll, workflowQuery(filter), options.Find().SetSort(newestFirst))
}

func (r *workflowRepo) Replace(ctx context.Context, w *schema.Workflow) error {
	return replaceByID(ctx, r.coll, w.ID, w)
}

func (r *workflowRepo) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.coll, id)
}

type taskRepo struct {
	coll *mongo.Collection
}

func (r *taskRepo) Create(ctx context.Context, t *schema.Task) error {
	_, err := r.coll.InsertOne(ctx, t)
	return translate(err)
}

func (r *taskRepo) Get(ctx context.Context, id string) (*schema.Task, error) {
	return findOne[schema.Task](ctx, r.coll, bson.M{"_id": id})
}

func (r *taskRepo) List(ctx context.Context, filter store.TaskFilter, page store.Page) ([]schema.Task, int, error) {
	query := taskQuery(filter)
	opts := options.Find().SetSort(newestFirst)
	if page.IsZero() {
		tasks, err := findAll[schema.Task](ctx, r.coll, query, opts)
		return tasks, len(tasks), err
	}

	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	opts.SetSkip(int64(page.Skip())).SetLimit(int64(page.Limit))
	tasks, err := findAll[schema.Task](ctx, r.coll, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return tasks, int(total), nil
}

func (r *taskRepo) Replace(ctx context.Context, t *schema.Task) error {
	return replaceByID(ctx, r.coll, t.ID, t)
}

func (r *taskRepo) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.coll, id)
}

type activityRepo struct {
	coll *mongo.Collection
}

func (r *activityRepo) Append(ctx context.Context, entry *schema.ActivityLog) error {
	_, err := r.coll.InsertOne(ctx, entry)
	return translate(err)
}

func (r *activityRepo) ListByTask(ctx context.Context, taskID string, limit int) ([]schema.ActivityLog, error) {
	opts := options.Find().SetSort(newestFirst)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return findAll[schema.ActivityLog](ctx, r.coll, bson.M{"taskId": taskID}, opts)
}

func (r *activityRepo) DeleteByTask(ctx context.Context, taskID string) (int, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"taskId": taskID})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

type notificationRepo struct {
	coll *mongo.Collection
}

func (r *notificationRepo) Create(ctx context.Context, n *schema.Notification) error {
	_, err := r.coll.InsertOne(ctx, n)
	return translate(err)
}

func (r *notificationRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]schema.Notification, error) {
	query := bson.M{"userId": userID}
	if unreadOnly {
		query["read"] = false
	}
	return findAll[schema.Notification](ctx, r.coll, query, options.Find().SetSort(newestFirst))
}

func (r *notificationRepo) MarkRead(ctx context.Context, userID, id string) (*schema.Notification, error) {
	update := bson.M{"$set": bson.M{"read": true, "updatedAt": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var n schema.Notification
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id, "userId": userID}, update, opts).Decode(&n)
	if err != nil {
		return nil, translate(err)
	}
	return &n, nil
}

// taskQuery translates a filter into the equivalent of TaskFilter.Matches.
func taskQuery(f store.TaskFilter) bson.M {
	q := bson.M{}
	if f.WorkflowID != "" {
		q["workflowId"] = f.WorkflowID
	}
	if f.ProjectID != "" {
		q["projectId"] = f.ProjectID
	}
	if f.Stage != "" {
		q["currentStage"] = f.Stage
	}
	if f.Priority != "" {
		q["priority"] = f.Priority
	}
	if f.AssignedTo != "" {
		q["assignedTo"] = f.AssignedTo
	}
	if f.CreatedFrom != nil || f.CreatedTo != nil {
		created := bson.M{}
		if f.CreatedFrom != nil {
			created["$gte"] = *f.CreatedFrom
		}
		if f.CreatedTo != nil {
			created["$lte"] = *f.CreatedTo
		}
		q["createdAt"] = created
	}
	if f.Search != "" {
		rx := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		q["$or"] = bson.A{
			bson.M{"title": rx},
			bson.M{"description": rx},
			bson.M{"tags": rx},
		}
	}
	return q
}

// workflowQuery translates a filter into the equivalent of WorkflowFilter.Matches.
func workflowQuery(f store.WorkflowFilter) bson.M {
	q := bson.M{}
	if f.ProjectID != "" {
		q["projectId"] = f.ProjectID
	}
	if f.Name != "" {
		q["name"] = f.Name
	}
	if f.VisibleTo != "" {
		q["$or"] = bson.A{
			bson.M{"isDefault": true},
			bson.M{"createdBy": f.VisibleTo},
		}
	}
	return q
}
