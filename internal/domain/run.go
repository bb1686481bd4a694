package domain

import "time"

// RunStatus is the outcome of a rebuild.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// RebuildRun is a historical record of one view rebuild.
type RebuildRun struct {
	ID          string         `json:"id"`
	ViewName    string         `json:"viewName"`
	Anchor      CollectionID   `json:"anchor"`
	Collections []CollectionID `json:"collections"`
	Fields      FieldSet       `json:"fields"`
	Strategy    string         `json:"strategy"`
	StageCount  int            `json:"stageCount"`
	Dropped     bool           `json:"dropped"`
	StartedAt   time.Time      `json:"startedAt"`
	FinishedAt  time.Time      `json:"finishedAt"`
	Status      RunStatus      `json:"status"`
	Error       string         `json:"error,omitempty"`
}

// RebuildRunStore persists rebuild history.
type RebuildRunStore interface {
	CreateRun(run *RebuildRun) error
	ListRuns(viewName string, limit int) ([]RebuildRun, error)
	LastSuccessful(viewName string) (*RebuildRun, error)
}
