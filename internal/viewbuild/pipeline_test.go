package viewbuild_test

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/viewbuild"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func kinds(p domain.Pipeline) []domain.StageKind {
	out := make([]domain.StageKind, 0, len(p))
	for _, st := range p {
		out = append(out, st.Kind())
	}
	return out
}

func TestBuildPipeline_StageShape(t *testing.T) {
	p := viewbuild.BuildPipeline([]domain.CollectionID{"A", "B", "C"}, domain.FieldSet{"x", "y"})

	want := []domain.StageKind{
		domain.StageGroup,
		domain.StageLookup, domain.StageProject,
		domain.StageLookup, domain.StageProject,
	}
	if got := kinds(p); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected stages %v, got %v", want, got)
	}

	group := p[0].(domain.GroupStage)
	if group.Key != nil {
		t.Errorf("expected null group key, got %v", group.Key)
	}
	if group.AccumulatorField != domain.DataField {
		t.Errorf("expected accumulator %q, got %q", domain.DataField, group.AccumulatorField)
	}

	for i, coll := range []string{"B", "C"} {
		lookup := p[1+2*i].(domain.LookupStage)
		if lookup.From != coll || lookup.As != coll {
			t.Errorf("lookup %d: expected from/as %s, got %s/%s", i, coll, lookup.From, lookup.As)
		}
		sub := lookup.Pipeline[0].(domain.ProjectStage)
		if !sub.ExcludeID {
			t.Errorf("lookup %d: joined records must drop _id", i)
		}

		concat := p[2+2*i].(domain.ProjectStage)
		expr, ok := concat.Fields[0].Expr.(domain.ConcatArrays)
		if !ok || len(expr) != 2 || expr[1] != domain.FieldRef(coll) {
			t.Errorf("project %d: expected concat of data and %s, got %#v", i, coll, concat.Fields[0].Expr)
		}
	}
}

func TestBuildPipeline_SingleCollection(t *testing.T) {
	p := viewbuild.BuildPipeline([]domain.CollectionID{"A"}, domain.FieldSet{"x"})
	if !reflect.DeepEqual(kinds(p), []domain.StageKind{domain.StageGroup, domain.StageProject}) {
		t.Fatalf("expected group then project, got %v", kinds(p))
	}
	final := p[1].(domain.ProjectStage)
	if !final.ExcludeID || len(final.Fields) != 1 || final.Fields[0].Expr != domain.FieldRef(domain.DataField) {
		t.Errorf("expected closing projection of data without _id, got %#v", final)
	}
}

func TestBuildPipeline_NeverUnwinds(t *testing.T) {
	p := viewbuild.BuildPipeline([]domain.CollectionID{"A", "B", "C", "D"}, domain.FieldSet{"x"})
	for _, k := range kinds(p) {
		if k == domain.StageUnwind {
			t.Fatal("merged view pipelines must not unwind the joined arrays")
		}
	}
}

func TestEncode_AggregationSyntax(t *testing.T) {
	p := viewbuild.BuildPipeline([]domain.CollectionID{"A", "B"}, domain.FieldSet{"x"})

	want := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "data", Value: bson.D{{Key: "$push", Value: bson.D{{Key: "x", Value: "$x"}}}}},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "B"},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$project", Value: bson.D{{Key: "x", Value: "$x"}, {Key: "_id", Value: 0}}}},
			}},
			{Key: "as", Value: "B"},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "data", Value: bson.D{{Key: "$concatArrays", Value: bson.A{"$data", "$B"}}}},
			{Key: "_id", Value: 0},
		}}},
	}

	if got := viewbuild.Encode(p); !reflect.DeepEqual(got, want) {
		t.Errorf("encoded pipeline mismatch\n got: %v\nwant: %v", got, want)
	}
}

func TestEncode_Unwind(t *testing.T) {
	got := viewbuild.Encode(domain.Pipeline{domain.UnwindStage{Field: "data"}})
	want := mongo.Pipeline{{{Key: "$unwind", Value: "$data"}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestMarshalPipeline_ExtendedJSON(t *testing.T) {
	p := viewbuild.Encode(viewbuild.BuildPipeline([]domain.CollectionID{"A", "B"}, domain.FieldSet{"x", "y"}))

	data, err := viewbuild.MarshalPipeline(p)
	if err != nil {
		t.Fatal(err)
	}

	var stages []map[string]any
	if err := json.Unmarshal(data, &stages); err != nil {
		t.Fatalf("output is not a JSON array: %v\n%s", err, data)
	}
	if len(stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(stages))
	}
	for _, op := range []string{"$group", "$lookup", "$project"} {
		if !strings.Contains(string(data), op) {
			t.Errorf("expected %s in output", op)
		}
	}
	if _, ok := stages[0]["$group"]; !ok {
		t.Errorf("expected first stage to be $group, got %v", stages[0])
	}
}
