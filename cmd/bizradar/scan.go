package main

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yeonjae-dev/bizradar/internal/cli"
	"github.com/yeonjae-dev/bizradar/internal/model"
)

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan fiscal data for tax-refund opportunities",
		Long: `Run a tax-opportunity scan: available fiscal data sources and the
company profile are fed to the analyzer, and detected opportunities are
stored with their estimated refunds.`,
		RunE: runScan,
	}
}

func runScan(_ *cobra.Command, _ []string) error {
	fmt.Println(cli.FormatTitle("Scanning for tax-refund opportunities..."))

	var scan model.TaxScan
	if err := apiRequest(http.MethodPost, "/api/scan", nil, &scan); err != nil {
		return err
	}

	printScan(&scan)
	return nil
}

func printScan(scan *model.TaxScan) {
	var sources []string
	for name, ok := range scan.DataSources {
		if ok {
			sources = append(sources, name)
		}
	}
	sort.Strings(sources)

	summary := fmt.Sprintf("Scan ID: %s\nOpportunities: %d\nEstimated refund: %s\nData completeness: %s\nSources: %s",
		scan.ID,
		len(scan.Opportunities),
		cli.FormatWon(scan.TotalEstimatedRefund),
		cli.FormatPercent(scan.DataCompleteness),
		strings.Join(sources, ", "))
	fmt.Println(cli.RenderBox(cli.MoneyIcon+" Tax Scan", summary))

	if len(scan.Opportunities) > 0 {
		fmt.Println(opportunityTable(scan.Opportunities))
	}
}

func opportunityTable(opps []model.Opportunity) string {
	rows := make([][]string, 0, len(opps))
	for _, o := range opps {
		rows = append(rows, []string{
			o.ID,
			o.TaxBenefitCode,
			o.Title,
			cli.FormatWon(o.EstimatedRefund),
			cli.FormatPercent(o.Confidence),
			string(o.Difficulty),
			string(o.Status),
		})
	}
	return cli.RenderTable(
		[]string{"ID", "Code", "Title", "Refund", "Confidence", "Difficulty", "Status"},
		rows)
}
