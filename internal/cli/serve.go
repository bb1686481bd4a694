package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/Reugito/Create-View-in-Mongo-DB/internal/mcp"
)

const shutdownGrace = 30 * time.Second

func serveCmd() *cobra.Command {
	var rebuildNow bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Rebuild on schedule.cron and on config changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rt, err := open(ctx, true)
			if err != nil {
				return err
			}
			defer rt.close()

			if rebuildNow {
				if _, err := rt.views.Rebuild(ctx, ""); err != nil {
					log.Printf("[SERVICE] Initial rebuild failed: %v", err)
				}
			}

			if err := rt.views.Start(ctx); err != nil {
				return err
			}
			log.Printf("[SERVICE] Serving view %s (Ctrl+C to stop)", rt.cfg.View.Name)

			<-ctx.Done()
			log.Println("[SERVICE] Shutting down...")
			rt.views.Stop()

			waitCtx, waitCancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer waitCancel()
			rt.views.WaitRunning(waitCtx)
			return nil
		},
	}
	cmd.Flags().BoolVar(&rebuildNow, "rebuild-now", false, "Rebuild once at startup before waiting for triggers")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run as an MCP server on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rt, err := open(ctx, true)
			if err != nil {
				return err
			}
			defer rt.close()

			srv := mcpserver.New(rt.views, Version)
			return srv.ServeStdio()
		},
	}
}
