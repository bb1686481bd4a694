// Package memstore is an in-memory document store that evaluates the
// aggregation stages the view builder emits. It backs unit tests and
// offline pipeline previews.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Op names a store operation for fault injection and call recording.
type Op string

const (
	OpList       Op = "list"
	OpFindOne    Op = "findOne"
	OpFindAll    Op = "findAll"
	OpDrop       Op = "drop"
	OpCreateView Op = "createView"
)

// Call is one recorded store operation.
type Call struct {
	Op         Op
	Collection string
}

type view struct {
	viewOn   string
	pipeline mongo.Pipeline
}

type fault struct {
	op         Op
	collection string
}

// Store holds collections and views in memory. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	names  []string
	colls  map[string][]bson.D
	views  map[string]view
	faults map[fault]error
	calls  []Call
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		colls:  map[string][]bson.D{},
		views:  map[string]view{},
		faults: map[fault]error{},
	}
}

// Insert appends records to collection, creating it if needed. Records
// without an _id get a fresh ObjectID.
func (s *Store) Insert(collection string, records ...bson.D) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.colls[collection]; !ok {
		s.names = append(s.names, collection)
		s.colls[collection] = nil
	}
	for _, r := range records {
		doc := slices.Clone(r)
		if _, ok := lookup(doc, domain.IDField); !ok {
			doc = append(bson.D{{Key: domain.IDField, Value: bson.NewObjectID()}}, doc...)
		}
		s.colls[collection] = append(s.colls[collection], doc)
	}
}

// FailOn makes every later op against collection return err.
// An empty collection matches any name.
func (s *Store) FailOn(op Op, collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[fault{op: op, collection: collection}] = err
}

// Calls returns the operations performed so far, in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// HasView reports whether a view named name exists.
func (s *Store) HasView(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.views[name]
	return ok
}

// ViewPipeline returns the pipeline a view was created with.
func (s *Store) ViewPipeline(name string) (viewOn string, pipeline mongo.Pipeline, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[name]
	return v.viewOn, v.pipeline, ok
}

func (s *Store) record(op Op, collection string) error {
	s.calls = append(s.calls, Call{Op: op, Collection: collection})
	if err, ok := s.faults[fault{op: op, collection: collection}]; ok {
		return err
	}
	if err, ok := s.faults[fault{op: op}]; ok {
		return err
	}
	return nil
}

// ListCollectionNames returns collections and views in creation order,
// minus the reserved bookkeeping names.
func (s *Store) ListCollectionNames(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpList, ""); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.names))
	for _, n := range s.names {
		if !domain.IsReservedCollection(n) {
			names = append(names, n)
		}
	}
	return names, nil
}

func (s *Store) FindOne(_ context.Context, collection string, filter, projection bson.D) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpFindOne, collection); err != nil {
		return nil, err
	}
	docs, err := s.documents(collection, 0)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if matches(d, filter) {
			return project(d, projection), nil
		}
	}
	return nil, nil
}

func (s *Store) FindAll(_ context.Context, collection string, filter bson.D) ([]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpFindAll, collection); err != nil {
		return nil, err
	}
	docs, err := s.documents(collection, 0)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Record, 0, len(docs))
	for _, d := range docs {
		if matches(d, filter) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpDrop, name); err != nil {
		return err
	}
	_, isColl := s.colls[name]
	_, isView := s.views[name]
	if !isColl && !isView {
		return domain.ErrNotFound
	}
	delete(s.colls, name)
	delete(s.views, name)
	s.names = slices.DeleteFunc(s.names, func(n string) bool { return n == name })
	return nil
}

func (s *Store) CreateView(_ context.Context, name, viewOn string, pipeline mongo.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(OpCreateView, name); err != nil {
		return err
	}
	_, isColl := s.colls[name]
	_, isView := s.views[name]
	if isColl || isView {
		return fmt.Errorf("namespace %s already exists", name)
	}
	s.views[name] = view{viewOn: viewOn, pipeline: slices.Clone(pipeline)}
	s.names = append(s.names, name)
	return nil
}

// documents returns a collection's records, evaluating views over their
// base. depth guards against view cycles.
func (s *Store) documents(name string, depth int) ([]bson.D, error) {
	if depth > 16 {
		return nil, fmt.Errorf("view nesting too deep at %s", name)
	}
	if v, ok := s.views[name]; ok {
		base, err := s.documents(v.viewOn, depth+1)
		if err != nil {
			return nil, err
		}
		return s.run(v.pipeline, base, depth+1)
	}
	return s.colls[name], nil
}

// matches supports equality and {$exists: bool} conditions.
func matches(doc, filter bson.D) bool {
	for _, cond := range filter {
		val, present := lookup(doc, cond.Key)
		if op, ok := cond.Value.(bson.D); ok && len(op) == 1 && op[0].Key == "$exists" {
			want, _ := op[0].Value.(bool)
			if present != want {
				return false
			}
			continue
		}
		if !present || !reflect.DeepEqual(val, cond.Value) {
			return false
		}
	}
	return true
}

// project applies an inclusion projection with optional _id exclusion.
func project(doc, projection bson.D) bson.D {
	keepID := true
	var include []string
	for _, p := range projection {
		if p.Key == domain.IDField {
			keepID = truthy(p.Value)
			continue
		}
		if truthy(p.Value) {
			include = append(include, p.Key)
		}
	}

	out := bson.D{}
	for _, e := range doc {
		if e.Key == domain.IDField {
			if keepID {
				out = append(out, e)
			}
			continue
		}
		if len(include) == 0 || slices.Contains(include, e.Key) {
			out = append(out, e)
		}
	}
	return out
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	default:
		return v != nil
	}
}

func lookup(doc bson.D, key string) (any, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}
