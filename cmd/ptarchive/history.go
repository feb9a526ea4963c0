package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/BadgerOps/ptarchive/internal/store"
)

var (
	historyLimit     int
	historyFailed    bool
	historyOlderThan time.Duration
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "Show past fetch runs",
		Long: `Show runs recorded in the history database (--db or store.db_path).
Without arguments, lists the most recent runs. With a run ID, shows every
bucket of that run in completion order; --failed limits the list to the
buckets that failed.`,
		Example: `  ptarchive history --db ~/.local/share/ptarchive/history.db
  ptarchive history --limit 20
  ptarchive history 3f2b1c9e-... --failed
  ptarchive history prune --older-than 720h`,
		Args: cobra.MaximumNArgs(1),
		RunE: historyRun,
	}

	cmd.Flags().IntVar(&historyLimit, "limit", 10, "number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&historyFailed, "failed", false, "show only failed buckets")

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a given age",
		Args:  cobra.NoArgs,
		RunE:  historyPruneRun,
	}
	prune.Flags().DurationVar(&historyOlderThan, "older-than", 30*24*time.Hour, "delete runs that started longer ago than this")
	cmd.AddCommand(prune)

	return cmd
}

func openHistory() (*store.Store, error) {
	if globalCfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	if globalCfg.Store.DBPath == "" {
		return nil, fmt.Errorf("no history database configured (use --db or store.db_path)")
	}
	return openLedger(globalCfg.Store.DBPath)
}

func historyRun(cmd *cobra.Command, args []string) error {
	st, err := openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		return printRun(out, st, args[0], historyFailed)
	}

	runs, err := st.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(out, "%-36s  %-14s  %-12s  %-8s  %7s  %6s  %9s\n",
		"RUN", "STARTED", "MODE", "STATUS", "BUCKETS", "FAILED", "SIZE")
	for _, r := range runs {
		fmt.Fprintf(out, "%-36s  %-14s  %-12s  %-8s  %7d  %6d  %9s\n",
			r.ID, humanize.Time(r.StartedAt), r.Mode, r.Status,
			r.Total, r.Failed, humanize.Bytes(uint64(r.Bytes)))
	}
	return nil
}

func printRun(out io.Writer, st *store.Store, id string, failedOnly bool) error {
	run, err := st.GetRun(id)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Run:        %s\n", run.ID)
	fmt.Fprintf(out, "Started:    %s (%s)\n", run.StartedAt.Local().Format(time.RFC3339), humanize.Time(run.StartedAt))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(out, "Elapsed:    %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(out, "Mode:       %s (concurrency %d, throttle %dms)\n", run.Mode, run.Concurrency, run.ThrottleMS)
	fmt.Fprintf(out, "Output:     %s\n", run.OutputDir)
	fmt.Fprintf(out, "Status:     %s\n", run.Status)
	fmt.Fprintf(out, "Buckets:    %d (%d succeeded, %d failed)\n", run.Total, run.Succeeded, run.Failed)
	fmt.Fprintf(out, "Downloaded: %s\n", humanize.Bytes(uint64(run.Bytes)))
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:      %s\n", run.ErrorMessage)
	}

	buckets, err := st.ListBuckets(run.ID, failedOnly)
	if err != nil {
		return err
	}
	if len(buckets) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	for _, b := range buckets {
		if b.Error != "" {
			fmt.Fprintf(out, "  %s  %-7s  %s\n", b.Key, b.Status, b.Error)
			continue
		}
		fmt.Fprintf(out, "  %s  %-7s  %s\n", b.Key, b.Status, humanize.Bytes(uint64(b.Bytes)))
	}
	return nil
}

func historyPruneRun(cmd *cobra.Command, args []string) error {
	st, err := openHistory()
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.PruneRuns(time.Now().Add(-historyOlderThan))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d runs\n", n)
	return nil
}
