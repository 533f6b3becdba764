package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/cityscope-ingest/internal/pipeline"
)

// newIngestCmd creates the 'ingest' subcommand.
func newIngestCmd() *cobra.Command {
	var opts pipeline.RunOptions

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Runs one ingest batch",
		Long: `Lists the configured portal pages, drops documents that are already stored,
and processes at most --max new documents in listing order. Per-document
failures are logged and counted; they do not change the exit code.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a App) error {
				if opts.MaxCandidates < 0 {
					return fmt.Errorf("--max must be >= 0, got %d", opts.MaxCandidates)
				}
				// the report is logged by the app; only fatal conditions surface here
				_, err := a.Ingest(cmd.Context(), opts)
				return err
			})
		},
	}

	cmd.Flags().IntVar(&opts.MaxCandidates, "max", 0, "maximum new documents to process (default from pipeline.max_candidates)")
	cmd.Flags().BoolVar(&opts.SkipExistenceCheck, "skip-existence-check", false,
		"reprocess every listed document; requires pipeline.allow_skip_existence_check")
	return cmd
}
