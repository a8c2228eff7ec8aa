package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yeonjae-dev/bizradar/internal/cli"
	"github.com/yeonjae-dev/bizradar/internal/model"
	"github.com/yeonjae-dev/bizradar/internal/pipeline"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync subsidy program listings",
		Long: `Run the full refresh pipeline against the server: collect listings,
prescreen them against the company profile, crawl details, and run the
AI enrichment and fit analysis.`,
		RunE: runSync,
	}

	cmd.Flags().Bool("force", false, "Re-analyze programs even if already analyzed")
	_ = viper.BindPFlag("sync.force", cmd.Flags().Lookup("force"))

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	fmt.Println(cli.FormatTitle("Syncing subsidy programs..."))

	renderer := cli.NewProgressRenderer(os.Stderr)
	call, err := pipelineClient().Run(cmd.Context(), "/api/sync",
		pipeline.SyncParams{ForceReanalyze: viper.GetBool("sync.force")},
		renderer.Update)
	if err != nil {
		return err
	}

	result, err := call.Wait()
	renderer.Finish()
	if err != nil {
		return err
	}

	var stats model.SyncStats
	if err := json.Unmarshal(result, &stats); err != nil {
		return fmt.Errorf("failed to decode run result: %w", err)
	}

	summary := fmt.Sprintf("Fetched: %d\nCreated: %d\nUpdated: %d\nProcessed: %d\nSkipped: %d\nAnalyzed: %d\nErrors: %d\nAttachments: %d\nDuration: %s",
		stats.TotalFetched, stats.Created, stats.Updated,
		stats.Processed, stats.Skipped, stats.Analyzed, stats.Errors,
		stats.AttachmentsDownloaded,
		stats.CompletedAt.Sub(stats.StartedAt).Round(time.Second))
	fmt.Println(cli.RenderBox("Sync Complete", summary))

	if stats.Errors > 0 {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("%d items failed; they will be retried on the next run", stats.Errors)))
	}
	return nil
}
