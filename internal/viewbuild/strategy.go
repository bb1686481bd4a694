package viewbuild

import (
	"context"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"
)

// Strategy names accepted in configuration.
const (
	StrategyDynamic = "dynamic"
	StrategyFixed   = "fixed"
)

// DefaultFixedFields is the block-details schema used when the fixed
// strategy is selected without an explicit field list.
var DefaultFixedFields = domain.FieldSet{"hash", "blockNumber", "status", "gas", "from", "to", "chain_id"}

// FieldSelectionStrategy decides which fields a view projects.
type FieldSelectionStrategy interface {
	Name() string
	Select(ctx context.Context, collections []domain.CollectionID) (domain.FieldSet, error)
}

// DynamicIntersection discovers the common fields with existence probes.
type DynamicIntersection struct {
	Resolver *CommonFieldResolver
}

func (d *DynamicIntersection) Name() string { return StrategyDynamic }

func (d *DynamicIntersection) Select(ctx context.Context, collections []domain.CollectionID) (domain.FieldSet, error) {
	return d.Resolver.Resolve(ctx, collections)
}

// FixedSchema projects a configured field list without touching the store.
type FixedSchema struct {
	Fields domain.FieldSet
}

func (f *FixedSchema) Name() string { return StrategyFixed }

func (f *FixedSchema) Select(_ context.Context, _ []domain.CollectionID) (domain.FieldSet, error) {
	out := make(domain.FieldSet, len(f.Fields))
	copy(out, f.Fields)
	return out, nil
}

// NewStrategy returns the strategy registered under name.
func NewStrategy(name string, store Store, fields domain.FieldSet, concurrency int) (FieldSelectionStrategy, error) {
	switch name {
	case StrategyDynamic, "":
		return &DynamicIntersection{
			Resolver: NewCommonFieldResolver(NewSchemaInspector(store), concurrency),
		}, nil
	case StrategyFixed:
		if len(fields) == 0 {
			fields = DefaultFixedFields
		}
		return &FixedSchema{Fields: fields}, nil
	default:
		return nil, &UnknownStrategyError{Name: name}
	}
}

// UnknownStrategyError is returned by NewStrategy for an unregistered name.
type UnknownStrategyError struct {
	Name string
}

func (e *UnknownStrategyError) Error() string {
	return "unknown field selection strategy: " + e.Name
}
