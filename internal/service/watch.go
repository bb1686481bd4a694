package service

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/config"
)

const watchDebounce = 500 * time.Millisecond

// ── Triggers (cron + config watch) ────────────────────────

// Start tears down any running triggers and rebuilds them from the
// active config: a cron schedule when schedule.cron is set, and a
// watcher on the config file when schedule.watchConfig is set.
func (s *ViewService) Start(ctx context.Context) error {
	s.stopWatchers()
	cfg := s.Config()

	if err := s.schedule(ctx, cfg.Schedule.Cron); err != nil {
		return err
	}

	if cfg.Schedule.WatchConfig && cfg.Path() != "" {
		if err := s.watchConfig(ctx, cfg.Path()); err != nil {
			s.stopWatchers()
			return err
		}
	}
	return nil
}

// schedule swaps the cron scheduler for one running expr. An empty expr
// only stops the current scheduler. On error the current one keeps running.
func (s *ViewService) schedule(ctx context.Context, expr string) error {
	var c *cron.Cron
	if expr != "" {
		c = cron.New()
		_, err := c.AddFunc(expr, func() {
			log.Printf("[SERVICE] cron: rebuilding %s", s.Config().View.Name)
			if _, err := s.rebuildFor(ctx, "", TriggerCron); err != nil {
				log.Printf("[SERVICE] cron: rebuild failed: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid schedule.cron %q: %w", expr, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
	}
	s.cronSched = c
	s.cronExpr = expr
	if c != nil {
		c.Start()
		log.Printf("[SERVICE] cron: scheduled %q", expr)
	}
	return nil
}

// watchConfig reloads the config file on write and rebuilds with it.
// Events are debounced because editors often write in several steps.
func (s *ViewService) watchConfig(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("bad config path %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors replace files instead of writing in place
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.watcher = watcher
	s.watchCancel = cancel
	s.mu.Unlock()

	go func() {
		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if p, _ := filepath.Abs(event.Name); p != absPath {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, func() {
					s.reload(watchCtx, absPath)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[SERVICE] watcher: error: %v", err)
			}
		}
	}()

	log.Printf("[SERVICE] watcher: watching %s", absPath)
	return nil
}

// reload re-reads the config, reschedules cron when schedule.cron changed,
// and rebuilds. An invalid file keeps the previous config in place.
func (s *ViewService) reload(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	cfg, err := config.Load(path, true)
	if err != nil {
		log.Printf("[SERVICE] watcher: keeping previous config: %v", err)
		return
	}
	s.SetConfig(cfg)

	s.mu.RLock()
	current := s.cronExpr
	s.mu.RUnlock()
	if cfg.Schedule.Cron != current {
		if err := s.schedule(ctx, cfg.Schedule.Cron); err != nil {
			log.Printf("[SERVICE] watcher: keeping previous schedule: %v", err)
		}
	}

	log.Printf("[SERVICE] watcher: config reloaded, rebuilding %s", cfg.View.Name)
	if _, err := s.rebuildFor(ctx, "", TriggerWatch); err != nil {
		log.Printf("[SERVICE] watcher: rebuild failed: %v", err)
	}
}

// Stop tears down all watchers and schedulers.
func (s *ViewService) Stop() {
	s.stopWatchers()
}

func (s *ViewService) stopWatchers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
	s.cronExpr = ""
}
