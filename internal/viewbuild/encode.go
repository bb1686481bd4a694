package viewbuild

import (
	"encoding/json"
	"fmt"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Encode renders a pipeline in MongoDB aggregation syntax.
func Encode(p domain.Pipeline) mongo.Pipeline {
	out := make(mongo.Pipeline, 0, len(p))
	for _, st := range p {
		out = append(out, encodeStage(st))
	}
	return out
}

func encodeStage(st domain.Stage) bson.D {
	switch s := st.(type) {
	case domain.GroupStage:
		return bson.D{{Key: "$group", Value: bson.D{
			{Key: domain.IDField, Value: s.Key},
			{Key: s.AccumulatorField, Value: bson.D{
				{Key: "$push", Value: encodeProjection(s.Push)},
			}},
		}}}

	case domain.LookupStage:
		sub := Encode(s.Pipeline)
		stages := make(bson.A, 0, len(sub))
		for _, d := range sub {
			stages = append(stages, d)
		}
		return bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: s.From},
			{Key: "pipeline", Value: stages},
			{Key: "as", Value: s.As},
		}}}

	case domain.UnwindStage:
		return bson.D{{Key: "$unwind", Value: ref(s.Field)}}

	case domain.ProjectStage:
		spec := encodeProjection(s.Fields)
		if s.ExcludeID {
			spec = append(spec, bson.E{Key: domain.IDField, Value: 0})
		}
		return bson.D{{Key: "$project", Value: spec}}

	default:
		panic(fmt.Sprintf("viewbuild: unknown stage %T", st))
	}
}

func encodeProjection(p domain.FieldProjection) bson.D {
	doc := make(bson.D, 0, len(p))
	for _, f := range p {
		doc = append(doc, bson.E{Key: f.Name, Value: encodeExpr(f.Expr)})
	}
	return doc
}

func encodeExpr(e domain.Expr) any {
	switch x := e.(type) {
	case domain.FieldRef:
		return ref(string(x))
	case domain.ConcatArrays:
		args := make(bson.A, 0, len(x))
		for _, a := range x {
			args = append(args, encodeExpr(a))
		}
		return bson.D{{Key: "$concatArrays", Value: args}}
	default:
		panic(fmt.Sprintf("viewbuild: unknown expression %T", e))
	}
}

func ref(field string) string { return "$" + field }

// MarshalPipeline renders an encoded pipeline as an indented Extended
// JSON array, the shape mongosh accepts for db.createView.
func MarshalPipeline(p mongo.Pipeline) ([]byte, error) {
	stages := make([]json.RawMessage, 0, len(p))
	for i, st := range p {
		raw, err := bson.MarshalExtJSON(st, false, false)
		if err != nil {
			return nil, fmt.Errorf("marshal stage %d: %w", i, err)
		}
		stages = append(stages, raw)
	}
	return json.MarshalIndent(stages, "", "  ")
}

// MarshalRecords renders records as an indented relaxed Extended JSON array.
func MarshalRecords(records []domain.Record) ([]byte, error) {
	out := make([]json.RawMessage, 0, len(records))
	for i, rec := range records {
		raw, err := bson.MarshalExtJSON(rec, false, false)
		if err != nil {
			return nil, fmt.Errorf("marshal record %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return json.MarshalIndent(out, "", "  ")
}
