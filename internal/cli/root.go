// Package cli is the mergeview command tree.
package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/config"
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/dbclient"
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/service"
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/storage"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mergeview",
	Short: "Build a MongoDB view that merges the common fields of many collections",
	Long: `mergeview finds the fields shared by a set of MongoDB collections and
(re)creates a view whose single document carries every record from every
source collection in one "data" array.

Examples:
  # Show the fields common to all collections
  mergeview fields

  # Print the pipeline a rebuild would create
  mergeview plan

  # Drop and recreate the view
  mergeview rebuild

  # Rebuild on a schedule and whenever the config file changes
  mergeview serve`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		fmt.Sprintf("Config file (default $%s or %s)", config.EnvConfigPath, config.DefaultPath))
	rootCmd.Version = Version

	rootCmd.AddCommand(
		collectionsCmd(),
		fieldsCmd(),
		planCmd(),
		rebuildCmd(),
		showCmd(),
		runsCmd(),
		serveCmd(),
		mcpCmd(),
	)
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runtime holds everything a command needs, opened from the config.
type runtime struct {
	cfg     *config.Config
	store   *dbclient.MongoStore
	history *storage.DB
	views   *service.ViewService
}

// open loads the config and connects the store and run history.
// An explicit --config must exist; the default location may be absent.
func open(ctx context.Context, withHistory bool) (*runtime, error) {
	cfg, err := config.Load(config.ResolvePath(configPath), configPath != "")
	if err != nil {
		return nil, err
	}

	store, err := dbclient.Connect(ctx, cfg.Mongo.URI, dbclient.Options{
		Database: cfg.Mongo.Database,
		Timeout:  cfg.Mongo.Timeout.Std(),
	})
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, store: store}

	var runs domain.RebuildRunStore
	if withHistory {
		db, err := storage.Open(cfg.History)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("open run history: %w", err)
		}
		rt.history = db
		runs = storage.NewRunStore(db)
		log.Printf("[HISTORY] Recording runs with %s", db.Driver())
	}

	rt.views = service.NewViewService(store, runs, cfg, service.LogEmitter{})
	return rt, nil
}

func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if rt.store != nil {
		rt.store.Close(ctx)
	}
	if rt.history != nil {
		rt.history.Close()
	}
}
