package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/config"
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/viewbuild"
)

// ErrRebuildInProgress is returned when the same view is already being rebuilt.
var ErrRebuildInProgress = errors.New("rebuild already in progress")

// Store is the document store as the service sees it.
type Store interface {
	viewbuild.Store
	ListCollectionNames(ctx context.Context) ([]string, error)
}

// ─────────────────────────────────────────────────────────────
// View Service: merged view rebuilds, history, and triggers
// ─────────────────────────────────────────────────────────────

// ViewService selects source collections, rebuilds merged views, records
// every run, and drives scheduled and config-triggered rebuilds.
type ViewService struct {
	store   Store
	runs    domain.RebuildRunStore
	emitter EventEmitter
	guard   rebuildGuard

	mu  sync.RWMutex
	cfg *config.Config

	// watcher / cron lifecycle
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
	cronExpr    string
}

// NewViewService creates a ViewService. runs may be nil to skip history.
func NewViewService(store Store, runs domain.RebuildRunStore, cfg *config.Config, emitter EventEmitter) *ViewService {
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	return &ViewService{
		store:   store,
		runs:    runs,
		emitter: emitter,
		cfg:     cfg,
	}
}

// Config returns the active configuration.
func (s *ViewService) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetConfig swaps the active configuration. In-flight rebuilds keep the
// config they started with.
func (s *ViewService) SetConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *ViewService) manager(cfg *config.Config) (*viewbuild.Manager, error) {
	strategy, err := viewbuild.NewStrategy(cfg.View.Strategy, s.store, domain.FieldSet(cfg.View.Fields), cfg.View.ProbeConcurrency)
	if err != nil {
		return nil, err
	}
	return viewbuild.NewManager(s.store, strategy), nil
}

func resolveName(cfg *config.Config, viewName string) string {
	if viewName == "" {
		return cfg.View.Name
	}
	return viewName
}

// ── Sources ────────────────────────────────────────────────

// Collections lists the mergeable collection names in the store.
func (s *ViewService) Collections(ctx context.Context) ([]string, error) {
	return s.store.ListCollectionNames(ctx)
}

// CommonFields resolves the fields shared by collections, in the first
// collection's order. With no collections it uses the configured sources
// for the active view.
func (s *ViewService) CommonFields(ctx context.Context, collections []domain.CollectionID) (domain.FieldSet, error) {
	cfg := s.Config()
	if len(collections) == 0 {
		sources, err := s.selectSources(ctx, cfg, cfg.View.Name)
		if err != nil {
			return nil, err
		}
		collections = slices.DeleteFunc(sources, func(c domain.CollectionID) bool { return c == cfg.View.Name })
	}
	if len(collections) == 0 {
		return nil, domain.ErrEmptySource
	}
	inspector := viewbuild.NewSchemaInspector(s.store)
	return viewbuild.NewCommonFieldResolver(inspector, cfg.View.ProbeConcurrency).Resolve(ctx, collections)
}

// selectSources builds the candidate list handed to the lifecycle
// manager. The view's own name stays in the list whenever the view
// exists, so the manager drops it before recreating.
func (s *ViewService) selectSources(ctx context.Context, cfg *config.Config, viewName string) ([]domain.CollectionID, error) {
	listed, err := s.store.ListCollectionNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	candidates := listed
	if len(cfg.Sources.Collections) > 0 {
		candidates = slices.Clone(cfg.Sources.Collections)
		if slices.Contains(listed, viewName) && !slices.Contains(candidates, viewName) {
			candidates = append(candidates, viewName)
		}
	}

	out := make([]domain.CollectionID, 0, len(candidates))
	for _, c := range candidates {
		if domain.IsReservedCollection(c) {
			continue
		}
		if c != viewName && slices.Contains(cfg.Sources.Exclude, c) {
			continue
		}
		if slices.Contains(out, c) {
			continue
		}
		out = append(out, c)
	}

	if anchor := cfg.Sources.Anchor; anchor != "" {
		idx := slices.Index(out, anchor)
		if idx < 0 || anchor == viewName {
			return nil, fmt.Errorf("anchor collection %q is not a source", anchor)
		}
		out = slices.Delete(out, idx, idx+1)
		out = slices.Insert(out, 0, anchor)
	}
	return out, nil
}

// ── Plan / Rebuild / Read ──────────────────────────────────

// Plan computes the pipeline a rebuild would create, without changing the store.
func (s *ViewService) Plan(ctx context.Context, viewName string) (*viewbuild.Report, error) {
	cfg := s.Config()
	viewName = resolveName(cfg, viewName)

	sources, err := s.selectSources(ctx, cfg, viewName)
	if err != nil {
		return nil, err
	}
	m, err := s.manager(cfg)
	if err != nil {
		return nil, err
	}
	return m.Plan(ctx, viewName, sources)
}

// Rebuild drops and recreates the merged view, records the run, and
// emits a completion event.
func (s *ViewService) Rebuild(ctx context.Context, viewName string) (*viewbuild.Report, error) {
	return s.rebuildFor(ctx, viewName, TriggerManual)
}

func (s *ViewService) rebuildFor(ctx context.Context, viewName, trigger string) (*viewbuild.Report, error) {
	cfg := s.Config()
	viewName = resolveName(cfg, viewName)

	if cur, ok := s.guard.TryLock(viewName, trigger); !ok {
		return nil, fmt.Errorf("%w: %s (%s rebuild started %s ago)", ErrRebuildInProgress,
			viewName, cur.Trigger, time.Since(cur.Started).Round(time.Millisecond))
	}
	defer s.guard.Unlock(viewName)

	unlock, err := acquireFileLock(ctx, cfg.Lock.Path, cfg.Lock.Timeout.Std())
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := time.Now()
	report, err := s.runRebuild(ctx, cfg, viewName)
	s.recordRun(cfg, viewName, start, report, err)

	if err != nil {
		log.Printf("[SERVICE] %s rebuild of %s failed: %v", trigger, viewName, err)
		s.emitter.Emit(ctx, EventViewRebuildFailed, map[string]string{
			"view":    viewName,
			"trigger": trigger,
			"error":   err.Error(),
		})
		return nil, err
	}

	log.Printf("[SERVICE] Rebuilt %s (%s) in %s", viewName, trigger, time.Since(start).Round(time.Millisecond))
	s.emitter.Emit(ctx, EventViewRebuilt, map[string]any{
		"view":        viewName,
		"trigger":     trigger,
		"anchor":      report.View.ViewOn,
		"collections": len(report.Sources),
		"fields":      len(report.Fields),
	})
	return report, nil
}

func (s *ViewService) runRebuild(ctx context.Context, cfg *config.Config, viewName string) (*viewbuild.Report, error) {
	sources, err := s.selectSources(ctx, cfg, viewName)
	if err != nil {
		return nil, err
	}
	m, err := s.manager(cfg)
	if err != nil {
		return nil, err
	}
	return m.RebuildView(ctx, viewName, sources)
}

func (s *ViewService) recordRun(cfg *config.Config, viewName string, start time.Time, report *viewbuild.Report, runErr error) {
	if s.runs == nil {
		return
	}
	run := &domain.RebuildRun{
		ViewName:   viewName,
		Strategy:   cfg.View.Strategy,
		StartedAt:  start,
		FinishedAt: time.Now(),
		Status:     domain.RunSuccess,
	}
	if report != nil {
		run.Anchor = report.View.ViewOn
		run.Collections = report.Sources
		run.Fields = report.Fields
		run.Strategy = report.Strategy
		run.StageCount = len(report.View.Pipeline)
		run.Dropped = report.Dropped
	}
	if runErr != nil {
		run.Status = domain.RunError
		run.Error = runErr.Error()
	}
	if err := s.runs.CreateRun(run); err != nil {
		log.Printf("[HISTORY] Failed to record run for %s: %v", viewName, err)
	}
}

// Read returns the merged records held in the view's data array.
// limit <= 0 returns all of them.
func (s *ViewService) Read(ctx context.Context, viewName string, limit int) ([]domain.Record, error) {
	viewName = resolveName(s.Config(), viewName)

	docs, err := s.store.FindAll(ctx, viewName, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("read view %s: %w", viewName, err)
	}

	var out []domain.Record
	for _, doc := range docs {
		for _, elem := range doc {
			if elem.Key != domain.DataField {
				continue
			}
			arr, ok := elem.Value.(bson.A)
			if !ok {
				continue
			}
			for _, item := range arr {
				if rec, ok := item.(bson.D); ok {
					out = append(out, rec)
				}
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Runs returns the newest rebuild runs for a view.
func (s *ViewService) Runs(viewName string, limit int) ([]domain.RebuildRun, error) {
	if s.runs == nil {
		return nil, errors.New("rebuild history is not configured")
	}
	return s.runs.ListRuns(resolveName(s.Config(), viewName), limit)
}

// LastSuccessful returns the newest successful run for a view, or nil
// when none succeeded yet.
func (s *ViewService) LastSuccessful(viewName string) (*domain.RebuildRun, error) {
	if s.runs == nil {
		return nil, errors.New("rebuild history is not configured")
	}
	return s.runs.LastSuccessful(resolveName(s.Config(), viewName))
}

// WaitRunning blocks until all running rebuilds finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *ViewService) WaitRunning(ctx context.Context) {
	for _, a := range s.guard.Active() {
		log.Printf("[SERVICE] Waiting for %s rebuild of %s, running %s",
			a.Trigger, a.View, time.Since(a.Started).Round(time.Millisecond))
	}
	s.guard.WaitAll(ctx)
}
