package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/LdDl/lineage-go/internal/runstore"
	"github.com/spf13/cobra"
)

var runsFlags struct {
	dataset string
	limit   int
}

// runsCmd groups run catalogue commands
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded tracking and evaluation runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  listRuns,
}

func listRuns(cmd *cobra.Command, args []string) error {
	if cfg.Store.Path == "" {
		return fmt.Errorf("run store disabled (store.path is empty)")
	}
	store, err := runstore.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	runs, err := store.List(runsFlags.dataset, runsFlags.limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tKIND\tDATASET\tCREATED\tFRAMES\tTRACKS\tDIVISIONS\tMEAN LEN\tFRAG RATE")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%.1f\t%.2f\n",
			run.RunID, run.Kind, run.Dataset,
			time.Unix(0, run.CreatedAt).Format(time.RFC3339),
			run.FrameCount, run.TrackCount, run.DivisionEvents,
			run.MeanTrackLength, run.FragmentationRate,
		)
	}
	return w.Flush()
}
