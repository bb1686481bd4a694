package memstore

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// run evaluates pipeline over input. Caller holds s.mu.
func (s *Store) run(pipeline mongo.Pipeline, input []bson.D, depth int) ([]bson.D, error) {
	docs := input
	for i, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("stage %d: expected one operator, got %d", i, len(stage))
		}
		var err error
		switch op := stage[0]; op.Key {
		case "$group":
			docs, err = evalGroup(op.Value, docs)
		case "$lookup":
			docs, err = s.evalLookup(op.Value, docs, depth)
		case "$unwind":
			docs, err = evalUnwind(op.Value, docs)
		case "$project":
			docs, err = evalProject(op.Value, docs)
		default:
			err = fmt.Errorf("unsupported operator %s", op.Key)
		}
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
	}
	return docs, nil
}

// evalGroup supports a null _id with $push accumulators. No input
// produces no output, as in MongoDB.
func evalGroup(spec any, docs []bson.D) ([]bson.D, error) {
	d, ok := spec.(bson.D)
	if !ok {
		return nil, fmt.Errorf("$group: spec must be a document")
	}
	if len(docs) == 0 {
		return nil, nil
	}

	out := bson.D{}
	for _, acc := range d {
		if acc.Key == domain.IDField {
			if acc.Value != nil {
				return nil, fmt.Errorf("$group: only a null _id is supported")
			}
			out = append(out, bson.E{Key: domain.IDField, Value: nil})
			continue
		}
		op, ok := acc.Value.(bson.D)
		if !ok || len(op) != 1 || op[0].Key != "$push" {
			return nil, fmt.Errorf("$group: %s must be a $push accumulator", acc.Key)
		}
		arr := bson.A{}
		for _, doc := range docs {
			if v, ok := evalExpr(op[0].Value, doc); ok {
				arr = append(arr, v)
			}
		}
		out = append(out, bson.E{Key: acc.Key, Value: arr})
	}
	return []bson.D{out}, nil
}

func (s *Store) evalLookup(spec any, docs []bson.D, depth int) ([]bson.D, error) {
	d, ok := spec.(bson.D)
	if !ok {
		return nil, fmt.Errorf("$lookup: spec must be a document")
	}
	fromV, _ := lookup(d, "from")
	asV, _ := lookup(d, "as")
	from, _ := fromV.(string)
	as, _ := asV.(string)
	if from == "" || as == "" {
		return nil, fmt.Errorf("$lookup: from and as are required")
	}

	var sub mongo.Pipeline
	if raw, ok := lookup(d, "pipeline"); ok {
		arr, ok := raw.(bson.A)
		if !ok {
			return nil, fmt.Errorf("$lookup: pipeline must be an array")
		}
		for _, st := range arr {
			sd, ok := st.(bson.D)
			if !ok {
				return nil, fmt.Errorf("$lookup: pipeline stages must be documents")
			}
			sub = append(sub, sd)
		}
	}

	foreign, err := s.documents(from, depth+1)
	if err != nil {
		return nil, err
	}
	joined, err := s.run(sub, foreign, depth+1)
	if err != nil {
		return nil, fmt.Errorf("$lookup %s: %w", from, err)
	}
	arr := make(bson.A, 0, len(joined))
	for _, j := range joined {
		arr = append(arr, j)
	}

	out := make([]bson.D, 0, len(docs))
	for _, doc := range docs {
		out = append(out, set(doc, as, slices.Clone(arr)))
	}
	return out, nil
}

func evalUnwind(spec any, docs []bson.D) ([]bson.D, error) {
	path, ok := spec.(string)
	if !ok || !strings.HasPrefix(path, "$") {
		return nil, fmt.Errorf("$unwind: expected a field path")
	}
	field := path[1:]

	var out []bson.D
	for _, doc := range docs {
		v, _ := lookup(doc, field)
		arr, ok := v.(bson.A)
		if !ok {
			continue
		}
		for _, elem := range arr {
			out = append(out, set(doc, field, elem))
		}
	}
	return out, nil
}

func evalProject(spec any, docs []bson.D) ([]bson.D, error) {
	d, ok := spec.(bson.D)
	if !ok {
		return nil, fmt.Errorf("$project: spec must be a document")
	}

	out := make([]bson.D, 0, len(docs))
	for _, doc := range docs {
		result := bson.D{}
		keepID := true
		for _, f := range d {
			if f.Key == domain.IDField {
				if _, isExpr := f.Value.(string); !isExpr {
					keepID = truthy(f.Value)
					continue
				}
			}
			switch f.Value.(type) {
			case int, int32, int64, float64, bool:
				if truthy(f.Value) {
					if v, ok := lookup(doc, f.Key); ok {
						result = append(result, bson.E{Key: f.Key, Value: v})
					}
				}
				continue
			}
			if v, ok := evalExpr(f.Value, doc); ok {
				result = append(result, bson.E{Key: f.Key, Value: v})
			}
		}
		if keepID {
			if id, ok := lookup(doc, domain.IDField); ok {
				result = append(bson.D{{Key: domain.IDField, Value: id}}, result...)
			}
		}
		out = append(out, result)
	}
	return out, nil
}

// evalExpr evaluates an aggregation expression against doc. The bool is
// false when the expression resolves to a missing field.
func evalExpr(expr any, doc bson.D) (any, bool) {
	switch x := expr.(type) {
	case string:
		if strings.HasPrefix(x, "$") {
			return lookup(doc, x[1:])
		}
		return x, true

	case bson.A:
		arr := make(bson.A, 0, len(x))
		for _, e := range x {
			v, ok := evalExpr(e, doc)
			if !ok {
				v = nil
			}
			arr = append(arr, v)
		}
		return arr, true

	case bson.D:
		if len(x) == 1 && x[0].Key == "$concatArrays" {
			return evalConcat(x[0].Value, doc), true
		}
		obj := bson.D{}
		for _, e := range x {
			if v, ok := evalExpr(e.Value, doc); ok {
				obj = append(obj, bson.E{Key: e.Key, Value: v})
			}
		}
		return obj, true

	default:
		return expr, true
	}
}

// evalConcat yields null when any argument is missing, null or not an array.
func evalConcat(args any, doc bson.D) any {
	list, ok := args.(bson.A)
	if !ok {
		return nil
	}
	out := bson.A{}
	for _, a := range list {
		v, ok := evalExpr(a, doc)
		if !ok {
			return nil
		}
		arr, ok := v.(bson.A)
		if !ok {
			return nil
		}
		out = append(out, arr...)
	}
	return out
}

// set returns a copy of doc with key replaced or appended.
func set(doc bson.D, key string, value any) bson.D {
	out := slices.Clone(doc)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, bson.E{Key: key, Value: value})
}
