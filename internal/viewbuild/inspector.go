package viewbuild

import (
	"context"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// SchemaInspector infers a collection's fields from one sampled record.
// The result only describes that record; use HasField when a field must
// be confirmed against the whole collection.
type SchemaInspector struct {
	store Store
}

// NewSchemaInspector creates a SchemaInspector reading from store.
func NewSchemaInspector(store Store) *SchemaInspector {
	return &SchemaInspector{store: store}
}

// Fields returns the top-level keys of the first available record in
// collection, minus _id. An empty collection yields an empty set.
func (i *SchemaInspector) Fields(ctx context.Context, collection domain.CollectionID) (domain.FieldSet, error) {
	rec, err := i.store.FindOne(ctx, collection, bson.D{}, bson.D{{Key: domain.IDField, Value: 0}})
	if err != nil {
		return nil, &domain.SchemaProbeError{Collection: collection, Err: err}
	}

	fields := domain.FieldSet{}
	for _, elem := range rec {
		if elem.Key == domain.IDField || fields.Contains(elem.Key) {
			continue
		}
		fields = append(fields, elem.Key)
	}
	return fields, nil
}

// HasField reports whether at least one record in collection carries field.
func (i *SchemaInspector) HasField(ctx context.Context, collection domain.CollectionID, field domain.FieldName) (bool, error) {
	filter := bson.D{{Key: field, Value: bson.D{{Key: "$exists", Value: true}}}}
	projection := bson.D{{Key: domain.IDField, Value: 0}, {Key: field, Value: 1}}

	rec, err := i.store.FindOne(ctx, collection, filter, projection)
	if err != nil {
		return false, &domain.SchemaProbeError{Collection: collection, Field: field, Err: err}
	}
	return rec != nil, nil
}
