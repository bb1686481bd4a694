package viewbuild

import (
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"
)

// BuildPipeline synthesizes the stages that union every collection's
// records, projected to fields, into one record's data array.
//
// The anchor's records seed data through a null-key $group. Each further
// collection is joined with $lookup and appended with $concatArrays. The
// joined array is never unwound: unwinding would repeat the single
// accumulator record once per joined element. A lone anchor still gets a
// closing $project so the record carries no _id.
func BuildPipeline(collections []domain.CollectionID, fields domain.FieldSet) domain.Pipeline {
	projection := fields.Projection()

	pipeline := domain.Pipeline{
		domain.GroupStage{
			Key:              nil,
			AccumulatorField: domain.DataField,
			Push:             projection,
		},
	}

	for i := 1; i < len(collections); i++ {
		coll := collections[i]
		pipeline = append(pipeline,
			domain.LookupStage{
				From: coll,
				Pipeline: domain.Pipeline{
					domain.ProjectStage{Fields: projection, ExcludeID: true},
				},
				As: coll,
			},
			domain.ProjectStage{
				Fields: domain.FieldProjection{{
					Name: domain.DataField,
					Expr: domain.ConcatArrays{
						domain.FieldRef(domain.DataField),
						domain.FieldRef(coll),
					},
				}},
				ExcludeID: true,
			},
		)
	}

	if len(collections) <= 1 {
		pipeline = append(pipeline, domain.ProjectStage{
			Fields: domain.FieldProjection{{
				Name: domain.DataField,
				Expr: domain.FieldRef(domain.DataField),
			}},
			ExcludeID: true,
		})
	}

	return pipeline
}
