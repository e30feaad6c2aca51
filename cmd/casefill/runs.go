package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yangwenmai/casefill/internal/progress"
	"github.com/yangwenmai/casefill/internal/store"
	"github.com/yangwenmai/casefill/internal/workflow"
)

func newRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs <case-id>",
		Short: "List the recorded runs of a case and their newest phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger, progress.Nop{})
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.store.ListRuns(ctx, args[0])
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no runs recorded for %s\n", args[0])
				return nil
			}
			sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.Before(runs[j].CreatedAt) })

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAMESPACE\tCREATED\tPHASE\tCHECKPOINTS\tLAST ERROR")
			for _, r := range runs {
				cs := a.store.Case(r.CaseID, r.Namespace)
				phase, lastErr := "-", ""
				wc, found, err := workflow.LoadCheckpoint(ctx, cs)
				if err != nil {
					return err
				}
				if found == store.Found {
					phase = wc.Phase
					if wc.LastError != nil {
						lastErr = wc.LastError.FailedStep + ": " + wc.LastError.ErrorType
					}
				}
				history, err := workflow.History(ctx, cs)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.Namespace, r.CreatedAt.Local().Format(time.DateTime), phase, len(history), lastErr)
			}
			return tw.Flush()
		},
	}
}

func newPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <case-id> <namespace>",
		Short: "Delete every artifact of one run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger, progress.Nop{})
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.store.Case(args[0], args[1]).Purge(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d artifacts from %s\n", n, args[1])
			return nil
		},
	}
}
