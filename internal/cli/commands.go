package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Reugito/Create-View-in-Mongo-DB/internal/domain"
	"github.com/Reugito/Create-View-in-Mongo-DB/internal/viewbuild"
)

func collectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List the collections that can be merged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.close()

			names, err := rt.views.Collections(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "database: %s\n", rt.store.Database())
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func fieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields [collection...]",
		Short: "Show the fields common to the given collections (default: configured sources)",
		Long: `Resolve the fields present in every listed collection, in the order
they appear in the first one. With no arguments the configured sources for
the view are used, anchor first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.close()

			fields, err := rt.views.CommonFields(cmd.Context(), args)
			if err != nil {
				return err
			}
			for _, f := range fields {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
}

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [view]",
		Short: "Print the aggregation pipeline a rebuild would create",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.close()

			report, err := rt.views.Plan(cmd.Context(), firstArg(args))
			if err != nil {
				return err
			}
			printReport(cmd, report)

			data, err := viewbuild.MarshalPipeline(viewbuild.Encode(report.View.Pipeline))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func rebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild [view]",
		Short: "Drop and recreate the merged view",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer rt.close()

			report, err := rt.views.Rebuild(cmd.Context(), firstArg(args))
			if err != nil {
				return err
			}
			printReport(cmd, report)
			return nil
		},
	}
}

func showCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "show [view]",
		Short: "Print the merged records held by the view",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.close()

			records, err := rt.views.Read(cmd.Context(), firstArg(args), limit)
			if err != nil {
				return err
			}
			data, err := viewbuild.MarshalRecords(records)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum records to print (0 for all)")
	return cmd
}

func runsCmd() *cobra.Command {
	var (
		limit       int
		lastSuccess bool
	)
	cmd := &cobra.Command{
		Use:   "runs [view]",
		Short: "List recent rebuild runs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer rt.close()

			var runs []domain.RebuildRun
			if lastSuccess {
				last, err := rt.views.LastSuccessful(firstArg(args))
				if err != nil {
					return err
				}
				if last != nil {
					runs = append(runs, *last)
				}
			} else {
				runs, err = rt.views.Runs(firstArg(args), limit)
				if err != nil {
					return err
				}
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No rebuild runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tSTATUS\tANCHOR\tSOURCES\tFIELDS\tDURATION\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					r.StartedAt.Local().Format(time.DateTime),
					r.Status,
					r.Anchor,
					len(r.Collections),
					len(r.Fields),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
					r.Error,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list")
	cmd.Flags().BoolVar(&lastSuccess, "last-success", false, "Show only the newest successful run")
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// printReport writes a short human summary to stderr so stdout stays
// machine-readable.
func printReport(cmd *cobra.Command, r *viewbuild.Report) {
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "view:     %s\n", r.View.Name)
	fmt.Fprintf(out, "anchor:   %s\n", r.View.ViewOn)
	fmt.Fprintf(out, "sources:  %s\n", strings.Join(r.Sources, ", "))
	fmt.Fprintf(out, "fields:   %s\n", strings.Join(r.Fields, ", "))
	fmt.Fprintf(out, "strategy: %s\n", r.Strategy)
	if r.Dropped {
		fmt.Fprintln(out, "replaced existing view")
	}
}
