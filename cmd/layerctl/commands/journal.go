package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/layerkit/layerkit/pkg/stores"
)

type journalOutput struct {
	Summaries   []*stores.LayerSummary    `json:"summaries,omitempty"`
	Transitions []*stores.Transition      `json:"transitions"`
	Identify    []*stores.IdentifyRequest `json:"identify"`
}

func newJournalCommand() *cobra.Command {
	var (
		dbPath  string
		layerID string
		since   time.Duration
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List journaled state transitions and identify requests",
		Long: `Read the SQLite journal written by the layer core's journal observer.

Without --layer a per-layer summary of the latest state is printed first.`,
		Example: `  layerctl journal --db layers.db
  layerctl journal --db layers.db --layer hydro --since 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			j, err := stores.NewJournal(stores.Config{Path: dbPath})
			if err != nil {
				return err
			}
			if err := j.Init(ctx); err != nil {
				return err
			}
			defer func() { _ = j.Close() }()
			if err := j.Migrate(ctx); err != nil {
				return err
			}

			f := stores.Filter{LayerID: layerID, Limit: limit}
			if since > 0 {
				f.Since = time.Now().Add(-since)
			}

			var out journalOutput
			if layerID == "" {
				if out.Summaries, err = j.LayerSummaries(ctx); err != nil {
					return err
				}
			}
			if out.Transitions, err = j.ListTransitions(ctx, f); err != nil {
				return err
			}
			if out.Identify, err = j.ListIdentifyRequests(ctx, f); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			if len(out.Summaries) > 0 {
				fmt.Fprintln(w, "layers:")
				for _, s := range out.Summaries {
					fmt.Fprintf(w, "  %-20s %-12s %-10s since %s (%d transitions)\n",
						s.LayerID, s.LayerType, s.State, s.Since.Format(time.RFC3339), s.Transitions)
				}
			}
			fmt.Fprintln(w, "transitions:")
			for _, t := range out.Transitions {
				fmt.Fprintf(w, "  %s %-20s %s -> %s\n", t.At.Format(time.RFC3339), t.LayerID, t.From, t.To)
			}
			fmt.Fprintln(w, "identify:")
			for _, r := range out.Identify {
				status := "ok"
				if r.Error != nil {
					status = *r.Error
				}
				fmt.Fprintf(w, "  %s %-20s request=%s hits=%d took=%s %s\n",
					r.At.Format(time.RFC3339), r.LayerID, r.RequestID, r.Hits, r.Duration, status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "layers.db", "journal database path")
	cmd.Flags().StringVar(&layerID, "layer", "", "only this layer")
	cmd.Flags().DurationVar(&since, "since", 0, "only entries newer than this")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum rows per list")

	return cmd
}
