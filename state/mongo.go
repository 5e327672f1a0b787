package state

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dramaproject/drama/model"
)

const (
	databaseName       = "drama"
	workflowCollection = "workflow"
	taskCollection     = "task"
)

// MongoStore persists documents in MongoDB, keyed by the string id field.
type MongoStore struct {
	client    *mongo.Client
	workflows *mongo.Collection
	tasks     *mongo.Collection
}

// ConnectMongo connects to the document database and pings it.
func ConnectMongo(ctx context.Context, uri string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("state: connect to %s: %w", uri, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("state: ping %s: %w", uri, err)
	}

	db := client.Database(databaseName)
	return &MongoStore{
		client:    client,
		workflows: db.Collection(workflowCollection),
		tasks:     db.Collection(taskCollection),
	}, nil
}

// Tasks returns the task collection.
func (s *MongoStore) Tasks() TaskStore { return &mongoTasks{coll: s.tasks} }

// Workflows returns the workflow collection.
func (s *MongoStore) Workflows() WorkflowStore { return &mongoWorkflows{coll: s.workflows} }

// Close disconnects from the database.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type mongoTasks struct {
	coll *mongo.Collection
}

func (t *mongoTasks) Find(ctx context.Context, filter Filter) ([]model.TaskRecord, error) {
	cursor, err := t.coll.Find(ctx, bson.M(filter))
	if err != nil {
		return nil, fmt.Errorf("state: find tasks: %w", err)
	}

	var tasks []model.TaskRecord
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("state: decode tasks: %w", err)
	}
	return tasks, nil
}

func (t *mongoTasks) FindOne(ctx context.Context, id string) (*model.TaskRecord, error) {
	var task model.TaskRecord
	err := t.coll.FindOne(ctx, bson.M{"id": id}).Decode(&task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("state: find task %s: %w", id, err)
	}
	return &task, nil
}

func (t *mongoTasks) CreateOrUpdateFromID(ctx context.Context, id string, fields Fields) (*model.TaskRecord, error) {
	set := bson.M(fields)
	set["id"] = id

	_, err := t.coll.UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{"$set": set},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("state: upsert task %s: %w", id, err)
	}

	return t.FindOne(ctx, id)
}

type mongoWorkflows struct {
	coll *mongo.Collection
}

func (w *mongoWorkflows) FindOne(ctx context.Context, id string) (*model.WorkflowRecord, error) {
	var workflow model.WorkflowRecord
	err := w.coll.FindOne(ctx, bson.M{"id": id}).Decode(&workflow)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("state: find workflow %s: %w", id, err)
	}
	return &workflow, nil
}

func (w *mongoWorkflows) CreateOrUpdateFromID(ctx context.Context, id string, fields Fields) (*model.WorkflowRecord, error) {
	set := bson.M(fields)
	set["id"] = id

	_, err := w.coll.UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{"$set": set},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("state: upsert workflow %s: %w", id, err)
	}

	return w.FindOne(ctx, id)
}
