package domain

import "go.mongodb.org/mongo-driver/v2/bson"

// IDField is the store's identity key. It is never part of a FieldSet.
const IDField = "_id"

// DataField is the accumulator array on the single record a view yields.
const DataField = "data"

// Reserved collection names that are never merged into a view.
const (
	ReservedUserInfo   = "user_info"
	ReservedViewsTable = "system.views"
)

// IsReservedCollection reports whether name belongs to the store's bookkeeping.
func IsReservedCollection(name string) bool {
	return name == ReservedUserInfo || name == ReservedViewsTable
}

// CollectionID identifies a source collection. Order in a list matters:
// the first element anchors the view.
type CollectionID = string

// FieldName is a flat, top-level record key.
type FieldName = string

// Record is one store document: ordered keys with BSON-typed values.
type Record = bson.D

// FieldSet is an ordered set of field names. Order is discovery order in
// the anchor collection's sampled record.
type FieldSet []FieldName

// Contains reports whether f is in the set.
func (s FieldSet) Contains(f FieldName) bool {
	for _, name := range s {
		if name == f {
			return true
		}
	}
	return false
}

// Projection maps every field in the set to its self-reference.
func (s FieldSet) Projection() FieldProjection {
	p := make(FieldProjection, 0, len(s))
	for _, name := range s {
		p = append(p, ProjectedField{Name: name, Expr: FieldRef(name)})
	}
	return p
}

// ── Expressions ────────────────────────────────────────────

// Expr is a value expression evaluated against the current record.
type Expr interface {
	isExpr()
}

// FieldRef selects a field from the current record ("$" + name).
type FieldRef string

// ConcatArrays concatenates array-valued expressions in order.
type ConcatArrays []Expr

func (FieldRef) isExpr()     {}
func (ConcatArrays) isExpr() {}

// ProjectedField is one output key of a projection.
type ProjectedField struct {
	Name FieldName
	Expr Expr
}

// FieldProjection is an ordered output shape.
type FieldProjection []ProjectedField

// ── Stages ─────────────────────────────────────────────────

// StageKind names a pipeline stage variant.
type StageKind string

const (
	StageGroup   StageKind = "group"
	StageLookup  StageKind = "lookup"
	StageUnwind  StageKind = "unwind"
	StageProject StageKind = "project"
)

// Stage is one step of a Pipeline. The variants are GroupStage,
// LookupStage, UnwindStage and ProjectStage.
type Stage interface {
	Kind() StageKind
}

// GroupStage collapses every input record into one record whose
// AccumulatorField holds an array of Push-shaped entries.
// A nil Key groups everything together.
type GroupStage struct {
	Key              any
	AccumulatorField FieldName
	Push             FieldProjection
}

// LookupStage joins the records of From, after running Pipeline over
// them, into the array field As of the current record.
type LookupStage struct {
	From     CollectionID
	Pipeline Pipeline
	As       FieldName
}

// UnwindStage emits one record per element of an array field.
type UnwindStage struct {
	Field FieldName
}

// ProjectStage reshapes a record to Fields, optionally dropping _id.
type ProjectStage struct {
	Fields    FieldProjection
	ExcludeID bool
}

func (GroupStage) Kind() StageKind   { return StageGroup }
func (LookupStage) Kind() StageKind  { return StageLookup }
func (UnwindStage) Kind() StageKind  { return StageUnwind }
func (ProjectStage) Kind() StageKind { return StageProject }

// Pipeline is an ordered stage sequence; each stage consumes the
// previous stage's output.
type Pipeline []Stage

// ViewDefinition is a named derived collection bound to an anchor.
type ViewDefinition struct {
	Name     string
	ViewOn   CollectionID
	Pipeline Pipeline
}
