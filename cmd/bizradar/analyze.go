package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yeonjae-dev/bizradar/internal/cli"
	"github.com/yeonjae-dev/bizradar/internal/model"
	"github.com/yeonjae-dev/bizradar/internal/pipeline"
)

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run fit analysis over stored programs",
		Long: `Re-run the fit analysis as a single-phase run over programs that
have not been analyzed yet.`,
		RunE: runAnalyze,
	}

	cmd.Flags().Int("min-score", 0, "Mark programs below this fit score as excluded")
	cmd.Flags().Int("max-count", 0, "Analyze at most this many programs (0 = no limit)")
	_ = viper.BindPFlag("analyze.min_score", cmd.Flags().Lookup("min-score"))
	_ = viper.BindPFlag("analyze.max_count", cmd.Flags().Lookup("max-count"))

	return cmd
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	fmt.Println(cli.FormatTitle("Analyzing program fit..."))

	renderer := cli.NewProgressRenderer(os.Stderr)
	call, err := pipelineClient().Run(cmd.Context(), "/api/analyze-all",
		pipeline.AnalyzeParams{
			MinFitScore: viper.GetInt("analyze.min_score"),
			MaxCount:    viper.GetInt("analyze.max_count"),
		},
		renderer.Update)
	if err != nil {
		return err
	}

	result, err := call.Wait()
	renderer.Finish()
	if err != nil {
		return err
	}

	var stats model.AnalyzeStats
	if err := json.Unmarshal(result, &stats); err != nil {
		return fmt.Errorf("failed to decode run result: %w", err)
	}

	summary := fmt.Sprintf("Total: %d\nAnalyzed: %d\nSkipped: %d\nErrors: %d",
		stats.Total, stats.Analyzed, stats.Skipped, stats.Errors)
	fmt.Println(cli.RenderBox("Analysis Complete", summary))
	return nil
}
