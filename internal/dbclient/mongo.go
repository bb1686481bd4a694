package dbclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// codeNamespaceNotFound is the server error code for a missing collection.
const codeNamespaceNotFound = 26

// MongoStore implements the view builder's store contract on MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	dbName string
}

// Options tunes Connect.
type Options struct {
	// Database overrides the database named in the URI path.
	Database string
	// Timeout bounds the initial ping. Zero means 10s.
	Timeout time.Duration
}

// Connect opens a client for uri and verifies it with a ping. The
// database comes from opts.Database, then the URI path, then "test".
func Connect(ctx context.Context, uri string, opts Options) (*MongoStore, error) {
	logURI := maskURI(uri)
	dbName, err := DatabaseFromURI(uri)
	if err != nil {
		log.Printf("[MONGO] Invalid URI %s: %v", logURI, err)
		return nil, &domain.StoreConnectionError{URI: logURI, Err: err}
	}
	if opts.Database != "" {
		dbName = opts.Database
	}
	if dbName == "" {
		dbName = "test"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	log.Printf("[MONGO] Connecting with URI: %s", logURI)
	log.Printf("[MONGO] Database: %s", dbName)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		log.Printf("[MONGO] Connect failed: %v", err)
		return nil, &domain.StoreConnectionError{URI: logURI, Err: err}
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		log.Printf("[MONGO] Ping failed: %v", err)
		_ = client.Disconnect(context.Background())
		return nil, &domain.StoreConnectionError{URI: logURI, Err: err}
	}

	log.Printf("[MONGO] Client connected")
	return &MongoStore{
		client: client,
		db:     client.Database(dbName),
		dbName: dbName,
	}, nil
}

// Database returns the database name in use.
func (m *MongoStore) Database() string {
	return m.dbName
}

// ListCollectionNames returns collection and view names, minus the
// reserved user_info and system.views.
func (m *MongoStore) ListCollectionNames(ctx context.Context) ([]string, error) {
	names, err := m.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !domain.IsReservedCollection(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *MongoStore) FindOne(ctx context.Context, collection string, filter, projection bson.D) (domain.Record, error) {
	opts := options.FindOne()
	if len(projection) > 0 {
		opts.SetProjection(projection)
	}
	if filter == nil {
		filter = bson.D{}
	}

	var doc bson.D
	err := m.db.Collection(collection).FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("findOne %s: %w", collection, err)
	}
	return doc, nil
}

func (m *MongoStore) FindAll(ctx context.Context, collection string, filter bson.D) ([]domain.Record, error) {
	if filter == nil {
		filter = bson.D{}
	}
	cursor, err := m.db.Collection(collection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.D
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}

	log.Printf("[MONGO] Fetched %d docs from %s", len(docs), collection)
	out := make([]domain.Record, len(docs))
	copy(out, docs)
	return out, nil
}

// DropCollection drops a collection or view. NamespaceNotFound maps to
// domain.ErrNotFound. Current servers report success for a missing
// namespace, so the existence check runs first.
func (m *MongoStore) DropCollection(ctx context.Context, name string) error {
	names, err := m.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	if len(names) == 0 {
		return domain.ErrNotFound
	}

	if err := m.db.Collection(name).Drop(ctx); err != nil {
		if isNamespaceNotFound(err) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

func (m *MongoStore) CreateView(ctx context.Context, name, viewOn string, pipeline mongo.Pipeline) error {
	return m.db.CreateView(ctx, name, viewOn, pipeline)
}

// Close disconnects the client.
func (m *MongoStore) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func isNamespaceNotFound(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == codeNamespaceNotFound
	}
	return false
}
