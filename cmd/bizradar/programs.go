package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yeonjae-dev/bizradar/internal/cli"
	"github.com/yeonjae-dev/bizradar/internal/model"
)

func programsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "programs",
		Short: "Browse synced subsidy programs",
	}

	cmd.AddCommand(programsListCmd())
	return cmd
}

func programsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List programs from the local note store",
		RunE:  runProgramsList,
	}

	cmd.Flags().Int("min-score", 0, "Only show programs at or above this fit score")
	cmd.Flags().Bool("all", false, "Include excluded programs")
	_ = viper.BindPFlag("programs.min_score", cmd.Flags().Lookup("min-score"))
	_ = viper.BindPFlag("programs.all", cmd.Flags().Lookup("all"))

	return cmd
}

func runProgramsList(cmd *cobra.Command, _ []string) error {
	notes, err := openNotes()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	slugs, err := notes.List(ctx, "programs/")
	if err != nil {
		return err
	}
	if len(slugs) == 0 {
		fmt.Println(cli.FormatInfo("No programs synced yet; run 'bizradar sync' first"))
		return nil
	}

	minScore := viper.GetInt("programs.min_score")
	showAll := viper.GetBool("programs.all")

	var rows [][]string
	for _, slug := range slugs {
		var prog model.Program
		if _, err := notes.Read(ctx, slug, &prog); err != nil {
			fmt.Println(cli.FormatWarning(fmt.Sprintf("Skipping unreadable note %s: %v", slug, err)))
			continue
		}
		if prog.Excluded && !showAll {
			continue
		}
		if prog.FitScore < minScore {
			continue
		}

		deadline := ""
		if !prog.Deadline.IsZero() {
			deadline = prog.Deadline.Format("2006-01-02")
		}
		score := "-"
		if prog.Status == model.StatusAnalyzed {
			score = cli.FormatPercent(prog.FitScore)
		}
		rows = append(rows, []string{
			prog.Title,
			prog.Agency,
			cli.FormatWon(prog.SupportAmount),
			score,
			deadline,
			string(prog.Status),
		})
	}

	if len(rows) == 0 {
		fmt.Println(cli.FormatInfo("No programs match"))
		return nil
	}
	fmt.Println(cli.FormatTitle(fmt.Sprintf("%d programs", len(rows))))
	fmt.Println(cli.RenderTable(
		[]string{"Title", "Agency", "Support", "Fit", "Deadline", "Status"},
		rows))
	return nil
}
