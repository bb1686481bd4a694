package viewbuild

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"
)

// Report describes a planned or completed view rebuild.
type Report struct {
	View     domain.ViewDefinition
	Sources  []domain.CollectionID
	Fields   domain.FieldSet
	Strategy string
	// SelfListed is set when the view's own name was among the candidates.
	SelfListed bool
	// Dropped is set when an existing view was removed before creation.
	Dropped bool
}

// Manager owns the drop-then-create lifecycle of a merged view.
// The replace is not atomic: a failure after the drop leaves no view.
type Manager struct {
	store    Store
	strategy FieldSelectionStrategy
}

// NewManager creates a Manager that selects fields with strategy.
func NewManager(store Store, strategy FieldSelectionStrategy) *Manager {
	return &Manager{store: store, strategy: strategy}
}

// Strategy returns the active field selection strategy.
func (m *Manager) Strategy() FieldSelectionStrategy {
	return m.strategy
}

// Plan resolves fields and synthesizes the pipeline for name over
// collections without modifying the store.
func (m *Manager) Plan(ctx context.Context, name string, collections []domain.CollectionID) (*Report, error) {
	sources, selfListed := withoutView(name, collections)
	if len(sources) == 0 {
		return nil, domain.ErrEmptySource
	}
	// Joined collections become field names on the accumulator record.
	for _, c := range sources[1:] {
		if err := domain.CheckJoinField(c); err != nil {
			return nil, err
		}
	}

	fields, err := m.strategy.Select(ctx, sources)
	if err != nil {
		return nil, fmt.Errorf("select fields: %w", err)
	}

	return &Report{
		View: domain.ViewDefinition{
			Name:     name,
			ViewOn:   sources[0],
			Pipeline: BuildPipeline(sources, fields),
		},
		Sources:    sources,
		Fields:     fields,
		Strategy:   m.strategy.Name(),
		SelfListed: selfListed,
	}, nil
}

// RebuildView replaces the view name with a fresh union of collections.
// When name is itself listed, the existing view is dropped first; a
// missing view is not an error. The view is anchored on the first
// remaining collection.
func (m *Manager) RebuildView(ctx context.Context, name string, collections []domain.CollectionID) (*Report, error) {
	report, err := m.Plan(ctx, name, collections)
	if err != nil {
		return nil, err
	}

	if report.SelfListed {
		dropped, err := m.dropView(ctx, name)
		if err != nil {
			return report, err
		}
		report.Dropped = dropped
	}

	log.Printf("[VIEW] Creating %s on %s from %d collection(s), %d field(s)",
		name, report.View.ViewOn, len(report.Sources), len(report.Fields))

	if err := m.store.CreateView(ctx, name, report.View.ViewOn, Encode(report.View.Pipeline)); err != nil {
		return report, fmt.Errorf("create view %s: %w", name, err)
	}
	return report, nil
}

func (m *Manager) dropView(ctx context.Context, name string) (bool, error) {
	err := m.store.DropCollection(ctx, name)
	switch {
	case err == nil:
		log.Printf("[VIEW] Dropped view %s", name)
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		log.Printf("[VIEW] View %s not found, nothing to drop", name)
		return false, nil
	default:
		return false, fmt.Errorf("drop view %s: %w", name, err)
	}
}

// withoutView removes every occurrence of name from collections and keeps
// only the first occurrence of each remaining collection.
func withoutView(name string, collections []domain.CollectionID) ([]domain.CollectionID, bool) {
	out := make([]domain.CollectionID, 0, len(collections))
	seen := make(map[domain.CollectionID]bool, len(collections))
	found := false
	for _, c := range collections {
		if c == name {
			found = true
			continue
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, found
}
