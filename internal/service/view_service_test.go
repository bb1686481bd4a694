package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/config"
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/memstore"
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/service"
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.View.Name = "merged"
	cfg.Lock.Path = filepath.Join(t.TempDir(), "rebuild.lock")
	cfg.Lock.Timeout = config.Duration(300 * time.Millisecond)
	return cfg
}

func testRuns(t *testing.T) *storage.RunStore {
	t.Helper()
	db, err := storage.Open(storage.Config{
		Driver: storage.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "history.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return storage.NewRunStore(db)
}

func seededStore() *memstore.Store {
	store := memstore.New()
	store.Insert("A", bson.D{{Key: "x", Value: 1}, {Key: "y", Value: 2}})
	store.Insert("B", bson.D{{Key: "x", Value: 3}, {Key: "y", Value: 4}, {Key: "z", Value: 5}})
	return store
}

type fixture struct {
	store   *memstore.Store
	runs    *storage.RunStore
	emitter *service.MockEmitter
	svc     *service.ViewService
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	f := &fixture{
		store:   seededStore(),
		runs:    testRuns(t),
		emitter: &service.MockEmitter{},
	}
	f.svc = service.NewViewService(f.store, f.runs, cfg, f.emitter)
	return f
}

// ─────────────────────────────────────────────────────────────
// Rebuild
// ─────────────────────────────────────────────────────────────

func TestRebuild_CreatesViewRecordsRunAndEmits(t *testing.T) {
	f := newFixture(t, testConfig(t))
	ctx := context.Background()

	report, err := f.svc.Rebuild(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if report.View.Name != "merged" || report.View.ViewOn != "A" {
		t.Errorf("unexpected view %s on %s", report.View.Name, report.View.ViewOn)
	}
	if !f.store.HasView("merged") {
		t.Fatal("expected view to exist")
	}

	records, err := f.svc.Read(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.Record{
		{{Key: "x", Value: 1}, {Key: "y", Value: 2}},
		{{Key: "x", Value: 3}, {Key: "y", Value: 4}},
	}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("expected %v, got %v", want, records)
	}

	runs, err := f.svc.Runs("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != domain.RunSuccess || runs[0].StageCount != 3 {
		t.Errorf("expected one successful 3-stage run, got %+v", runs)
	}

	events := f.emitter.Snapshot()
	if len(events) != 1 || events[0].Event != service.EventViewRebuilt {
		t.Fatalf("expected one %s event, got %v", service.EventViewRebuilt, events)
	}
	payload, _ := events[0].Data.(map[string]any)
	if payload["trigger"] != service.TriggerManual {
		t.Errorf("expected manual trigger in %v", payload)
	}
}

func TestRebuild_SecondRunReplacesView(t *testing.T) {
	f := newFixture(t, testConfig(t))
	ctx := context.Background()

	if _, err := f.svc.Rebuild(ctx, ""); err != nil {
		t.Fatal(err)
	}
	report, err := f.svc.Rebuild(ctx, "")
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	if !report.Dropped {
		t.Error("expected the existing view to be dropped")
	}
	if !reflect.DeepEqual(report.Sources, []domain.CollectionID{"A", "B"}) {
		t.Errorf("the view must never be its own source, got %v", report.Sources)
	}

	runs, _ := f.svc.Runs("", 10)
	if len(runs) != 2 || !runs[0].Dropped {
		t.Errorf("expected newest run to record the drop, got %+v", runs)
	}
}

func TestRebuild_ExplicitViewName(t *testing.T) {
	f := newFixture(t, testConfig(t))

	if _, err := f.svc.Rebuild(context.Background(), "other_view"); err != nil {
		t.Fatal(err)
	}
	if !f.store.HasView("other_view") || f.store.HasView("merged") {
		t.Error("expected only other_view to be created")
	}
}

func TestRebuild_FailureIsRecorded(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.Anchor = "missing"
	f := newFixture(t, cfg)

	_, err := f.svc.Rebuild(context.Background(), "")
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected unknown anchor error, got %v", err)
	}

	runs, _ := f.svc.Runs("", 10)
	if len(runs) != 1 || runs[0].Status != domain.RunError || runs[0].Error == "" {
		t.Errorf("expected one failed run with its error, got %+v", runs)
	}
	events := f.emitter.Snapshot()
	if len(events) != 1 || events[0].Event != service.EventViewRebuildFailed {
		t.Errorf("expected one %s event, got %v", service.EventViewRebuildFailed, events)
	}
}

func TestRebuild_EmptyDatabase(t *testing.T) {
	cfg := testConfig(t)
	svc := service.NewViewService(memstore.New(), nil, cfg, nil)

	if _, err := svc.Rebuild(context.Background(), ""); !errors.Is(err, domain.ErrEmptySource) {
		t.Errorf("expected ErrEmptySource, got %v", err)
	}
}

// blockingStore parks the first FindOne until release is closed.
type blockingStore struct {
	*memstore.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingStore) FindOne(ctx context.Context, collection string, filter, projection bson.D) (domain.Record, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.Store.FindOne(ctx, collection, filter, projection)
}

func TestRebuild_InProgress(t *testing.T) {
	store := &blockingStore{
		Store:   seededStore(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := service.NewViewService(store, nil, testConfig(t), nil)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := svc.Rebuild(ctx, "")
		errc <- err
	}()
	<-store.entered

	_, err := svc.Rebuild(ctx, "")
	if !errors.Is(err, service.ErrRebuildInProgress) {
		t.Errorf("expected ErrRebuildInProgress, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "manual rebuild started") {
		t.Errorf("expected the holder's trigger in %q", err)
	}

	close(store.release)
	if err := <-errc; err != nil {
		t.Fatalf("first rebuild: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	svc.WaitRunning(waitCtx)
	if waitCtx.Err() != nil {
		t.Error("WaitRunning should return once the rebuild finished")
	}
}

func TestRebuild_LockHeldElsewhere(t *testing.T) {
	cfg := testConfig(t)
	f := newFixture(t, cfg)

	other := flock.New(cfg.Lock.Path)
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("could not take lock: %v", err)
	}
	defer other.Unlock()

	if _, err := f.svc.Rebuild(context.Background(), ""); !errors.Is(err, service.ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}
	if f.store.HasView("merged") {
		t.Error("no rebuild may run without the lock")
	}
}

// ─────────────────────────────────────────────────────────────
// Source selection
// ─────────────────────────────────────────────────────────────

func TestPlan_SourceSelection(t *testing.T) {
	tests := []struct {
		name    string
		sources config.SourcesConfig
		want    []domain.CollectionID
		wantErr bool
	}{
		{"all listed", config.SourcesConfig{}, []domain.CollectionID{"A", "B", "C"}, false},
		{"exclude", config.SourcesConfig{Exclude: []string{"B"}}, []domain.CollectionID{"A", "C"}, false},
		{"anchor moves first", config.SourcesConfig{Anchor: "C"}, []domain.CollectionID{"C", "A", "B"}, false},
		{"explicit order", config.SourcesConfig{Collections: []string{"B", "A"}}, []domain.CollectionID{"B", "A"}, false},
		{"explicit skips reserved and duplicates", config.SourcesConfig{Collections: []string{"A", domain.ReservedUserInfo, "A", "C"}}, []domain.CollectionID{"A", "C"}, false},
		{"anchor excluded", config.SourcesConfig{Anchor: "B", Exclude: []string{"B"}}, nil, true},
		{"anchor is the view", config.SourcesConfig{Anchor: "merged"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Sources = tt.sources
			f := newFixture(t, cfg)
			f.store.Insert("C", bson.D{{Key: "x", Value: 6}, {Key: "y", Value: 7}})
			f.store.Insert(domain.ReservedUserInfo, bson.D{{Key: "x", Value: 0}})

			report, err := f.svc.Plan(context.Background(), "")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got sources %v", report.Sources)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(report.Sources, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, report.Sources)
			}
			if f.store.HasView("merged") {
				t.Error("Plan must not create the view")
			}
		})
	}
}

func TestRebuild_ExplicitCollectionsStillReplaceView(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.Collections = []string{"B", "A"}
	f := newFixture(t, cfg)
	ctx := context.Background()

	if _, err := f.svc.Rebuild(ctx, ""); err != nil {
		t.Fatal(err)
	}
	report, err := f.svc.Rebuild(ctx, "")
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	if !report.Dropped || report.View.ViewOn != "B" {
		t.Errorf("expected view on B to be replaced, got %+v", report)
	}
}

func TestCommonFields(t *testing.T) {
	f := newFixture(t, testConfig(t))
	f.store.Insert("C", bson.D{{Key: "x", Value: 6}})
	ctx := context.Background()

	all, err := f.svc.CommonFields(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(all, domain.FieldSet{"x"}) {
		t.Errorf("expected [x] across all sources, got %v", all)
	}

	some, err := f.svc.CommonFields(ctx, []domain.CollectionID{"B", "A"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(some, domain.FieldSet{"x", "y"}) {
		t.Errorf("expected [x y] for B and A, got %v", some)
	}
}

// ─────────────────────────────────────────────────────────────
// Read / Runs
// ─────────────────────────────────────────────────────────────

func TestRead_Limit(t *testing.T) {
	f := newFixture(t, testConfig(t))
	ctx := context.Background()
	if _, err := f.svc.Rebuild(ctx, ""); err != nil {
		t.Fatal(err)
	}

	records, err := f.svc.Read(ctx, "", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record, got %d", len(records))
	}
}

func TestRuns_WithoutHistory(t *testing.T) {
	svc := service.NewViewService(seededStore(), nil, testConfig(t), nil)
	if _, err := svc.Runs("", 10); err == nil {
		t.Error("expected error when history is not configured")
	}
}

func TestLastSuccessful_SkipsFailedRuns(t *testing.T) {
	f := newFixture(t, testConfig(t))
	ctx := context.Background()

	none, err := f.svc.LastSuccessful("")
	if err != nil || none != nil {
		t.Fatalf("expected no run before any rebuild, got %+v, %v", none, err)
	}

	if _, err := f.svc.Rebuild(ctx, ""); err != nil {
		t.Fatal(err)
	}
	broken := testConfig(t)
	broken.Sources.Anchor = "missing"
	f.svc.SetConfig(broken)
	if _, err := f.svc.Rebuild(ctx, ""); err == nil {
		t.Fatal("expected the second rebuild to fail")
	}

	last, err := f.svc.LastSuccessful("")
	if err != nil {
		t.Fatal(err)
	}
	if last == nil || last.Status != domain.RunSuccess || last.Anchor != "A" {
		t.Errorf("expected the first, successful run, got %+v", last)
	}

	svc := service.NewViewService(seededStore(), nil, testConfig(t), nil)
	if _, err := svc.LastSuccessful(""); err == nil {
		t.Error("expected error when history is not configured")
	}
}

// ─────────────────────────────────────────────────────────────
// Triggers
// ─────────────────────────────────────────────────────────────

func TestStart_InvalidCron(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule.Cron = "every now and then"
	svc := service.NewViewService(seededStore(), nil, cfg, nil)

	if err := svc.Start(context.Background()); err == nil {
		svc.Stop()
		t.Fatal("expected invalid cron expression to fail")
	}
}

func TestStart_ConfigWatchRebuilds(t *testing.T) {
	for _, k := range []string{config.EnvMongoURI, config.EnvViewName} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "mergeview.yaml")
	lockPath := filepath.Join(dir, "rebuild.lock")
	write := func(view string) {
		body := fmt.Sprintf("view:\n  name: %s\nschedule:\n  watchConfig: true\nlock:\n  path: %s\n", view, lockPath)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("merged")

	cfg, err := config.Load(path, true)
	if err != nil {
		t.Fatal(err)
	}
	store := seededStore()
	svc := service.NewViewService(store, nil, cfg, nil)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer svc.Stop()

	write("renamed")

	deadline := time.Now().Add(5 * time.Second)
	for !store.HasView("renamed") {
		if time.Now().After(deadline) {
			t.Fatal("config change did not trigger a rebuild")
		}
		time.Sleep(50 * time.Millisecond)
	}
	if svc.Config().View.Name != "renamed" {
		t.Errorf("expected reloaded config, got %q", svc.Config().View.Name)
	}
}

func TestStart_ConfigWatchReschedulesCron(t *testing.T) {
	for _, k := range []string{config.EnvMongoURI, config.EnvViewName} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "mergeview.yaml")
	lockPath := filepath.Join(dir, "rebuild.lock")
	write := func(cron string) {
		body := fmt.Sprintf("view:\n  name: merged\nschedule:\n  watchConfig: true\n  cron: %q\nlock:\n  path: %s\n", cron, lockPath)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("")

	cfg, err := config.Load(path, true)
	if err != nil {
		t.Fatal(err)
	}
	store := seededStore()
	svc := service.NewViewService(store, nil, cfg, nil)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer svc.Stop()

	write("@every 1s")

	waitForView := func(what string) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !store.HasView("merged") {
			if time.Now().After(deadline) {
				t.Fatal(what)
			}
			time.Sleep(50 * time.Millisecond)
		}
	}
	waitForView("config change did not trigger a rebuild")

	// Only the new schedule can bring the view back now.
	if err := store.DropCollection(context.Background(), "merged"); err != nil {
		t.Fatal(err)
	}
	waitForView("reloaded schedule.cron did not trigger a rebuild")
}
