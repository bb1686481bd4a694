package viewbuild

import (
	"context"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"

	"golang.org/x/sync/errgroup"
)

// CommonFieldResolver computes the anchor's fields that exist in every
// other source collection.
type CommonFieldResolver struct {
	inspector   *SchemaInspector
	concurrency int
}

// NewCommonFieldResolver creates a resolver running at most concurrency
// field probes at once. Values below 1 run probes one at a time.
func NewCommonFieldResolver(inspector *SchemaInspector, concurrency int) *CommonFieldResolver {
	if concurrency < 1 {
		concurrency = 1
	}
	return &CommonFieldResolver{inspector: inspector, concurrency: concurrency}
}

// Resolve samples collections[0] and keeps each of its fields only if an
// existence probe finds it in every one of collections[1:]. The result
// follows the anchor's field order regardless of probe completion order.
// Any probe failure aborts the whole resolution.
func (r *CommonFieldResolver) Resolve(ctx context.Context, collections []domain.CollectionID) (domain.FieldSet, error) {
	if len(collections) == 0 {
		return domain.FieldSet{}, nil
	}

	candidates, err := r.inspector.Fields(ctx, collections[0])
	if err != nil {
		return nil, err
	}
	others := collections[1:]
	if len(others) == 0 {
		return candidates, nil
	}

	keep := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for idx, field := range candidates {
		g.Go(func() error {
			for _, coll := range others {
				ok, err := r.inspector.HasField(gctx, coll, field)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}
			keep[idx] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	common := make(domain.FieldSet, 0, len(candidates))
	for idx, field := range candidates {
		if keep[idx] {
			common = append(common, field)
		}
	}
	return common, nil
}
