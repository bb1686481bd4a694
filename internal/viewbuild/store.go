package viewbuild

import (
	"context"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Store is the slice of the document store the view builder needs.
// dbclient.MongoStore and memstore.Store implement it.
type Store interface {
	// FindOne returns the first record matching filter, reshaped by
	// projection, or nil when nothing matches.
	FindOne(ctx context.Context, collection string, filter, projection bson.D) (domain.Record, error)

	// FindAll returns every record matching filter.
	FindAll(ctx context.Context, collection string, filter bson.D) ([]domain.Record, error)

	// DropCollection removes a collection or view. A missing name
	// yields domain.ErrNotFound.
	DropCollection(ctx context.Context, name string) error

	// CreateView creates a view named name over viewOn.
	CreateView(ctx context.Context, name, viewOn string, pipeline mongo.Pipeline) error
}
