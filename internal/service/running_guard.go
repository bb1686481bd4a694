package service

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// ExportedRebuildGuard is an exported alias so _test packages can test the guard.
type ExportedRebuildGuard = rebuildGuard

// Rebuild triggers, recorded on the guard and in rebuild events.
const (
	TriggerManual = "manual"
	TriggerCron   = "cron"
	TriggerWatch  = "watch"
)

// ActiveRebuild describes a rebuild that currently holds a view.
type ActiveRebuild struct {
	View    string
	Trigger string
	Started time.Time
}

// ─────────────────────────────────────────────────────────────
// rebuildGuard: one rebuild per view name in this process
// ─────────────────────────────────────────────────────────────

// rebuildGuard tracks which views are being rebuilt and what started
// each one. Cross-process exclusion is the file lock's job.
type rebuildGuard struct {
	mu      sync.Mutex
	running map[string]ActiveRebuild
	wg      sync.WaitGroup
}

// TryLock claims viewName for trigger. When the view is already held it
// returns the holder and false.
func (g *rebuildGuard) TryLock(viewName, trigger string) (ActiveRebuild, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]ActiveRebuild)
	}
	if cur, ok := g.running[viewName]; ok {
		return cur, false
	}
	a := ActiveRebuild{View: viewName, Trigger: trigger, Started: time.Now()}
	g.running[viewName] = a
	g.wg.Add(1)
	return a, true
}

// Unlock releases viewName. Must follow a successful TryLock.
func (g *rebuildGuard) Unlock(viewName string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, viewName)
	g.wg.Done()
}

// Active lists the rebuilds in flight, ordered by view name.
func (g *rebuildGuard) Active() []ActiveRebuild {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ActiveRebuild, 0, len(g.running))
	for _, name := range slices.Sorted(maps.Keys(g.running)) {
		out = append(out, g.running[name])
	}
	return out
}

// WaitAll blocks until all in-flight rebuilds complete or ctx is cancelled.
func (g *rebuildGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
