package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	"cheqr/backend/internal/course/domain"
)

// CoursesCollection is the collection maintained by the course-management service.
const CoursesCollection = "courses"

const connectTimeout = 10 * time.Second

// courseDocument mirrors the stored course shape. Fields the attendance engine does not read are ignored.
type courseDocument struct {
	ID         any      `bson:"_id"`
	Code       string   `bson:"courseCode"`
	Name       string   `bson:"courseName"`
	LecturerID string   `bson:"lecturerId"`
	Students   []string `bson:"students"`
}

// MongoRepository reads courses from MongoDB.
type MongoRepository struct {
	client  *mongo.Client
	courses *mongo.Collection
}

// Connect dials uri with OTel command monitoring, pings the primary and returns a repository over dbName.
func Connect(ctx context.Context, uri, dbName string) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	opts := options.Client().ApplyURI(uri).
		SetConnectTimeout(connectTimeout).
		SetMonitor(otelmongo.NewMonitor())
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	return NewMongoRepository(client, dbName), nil
}

// NewMongoRepository returns a repository over an existing client.
func NewMongoRepository(client *mongo.Client, dbName string) *MongoRepository {
	return &MongoRepository{
		client:  client,
		courses: client.Database(dbName).Collection(CoursesCollection),
	}
}

// GetByID looks the course up by ObjectID when id is a 24-char hex string, else by string _id.
func (r *MongoRepository) GetByID(ctx context.Context, id string) (*domain.Course, error) {
	if id == "" {
		return nil, nil
	}
	var key any = id
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		key = oid
	}
	var doc courseDocument
	err := r.courses.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find course %s: %w", id, err)
	}
	return &domain.Course{
		ID:                 id,
		Code:               doc.Code,
		Name:               doc.Name,
		LecturerID:         doc.LecturerID,
		EnrolledStudentIDs: doc.Students,
	}, nil
}

// Upsert writes c keyed like GetByID reads it. Used by cmd/seed; the service itself never writes courses.
func (r *MongoRepository) Upsert(ctx context.Context, c *domain.Course) error {
	var key any = c.ID
	if oid, err := primitive.ObjectIDFromHex(c.ID); err == nil {
		key = oid
	}
	doc := courseDocument{
		ID:         key,
		Code:       c.Code,
		Name:       c.Name,
		LecturerID: c.LecturerID,
		Students:   c.EnrolledStudentIDs,
	}
	_, err := r.courses.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	return err
}

// Ping checks the primary with a short timeout. Used by the health checker.
func (r *MongoRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
