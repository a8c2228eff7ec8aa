package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yeonjae-dev/bizradar/internal/cli"
	"github.com/yeonjae-dev/bizradar/internal/model"
)

func opportunitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "opportunities",
		Aliases: []string{"opps"},
		Short:   "Manage detected tax-refund opportunities",
	}

	cmd.AddCommand(opportunitiesListCmd())
	cmd.AddCommand(opportunitiesStatusCmd())
	return cmd
}

func opportunitiesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List opportunities from the latest scan",
		RunE:  runOpportunitiesList,
	}

	cmd.Flags().String("scan", "", "Scan ID (default: latest)")
	cmd.Flags().String("status", "", "Filter by status")
	cmd.Flags().String("source", "", "Filter by data source")
	cmd.Flags().String("difficulty", "", "Filter by difficulty")
	cmd.Flags().Int("min-confidence", 0, "Minimum confidence")
	cmd.Flags().String("sort", "refund", "Sort order (refund, confidence)")
	_ = viper.BindPFlag("opportunities.scan", cmd.Flags().Lookup("scan"))
	_ = viper.BindPFlag("opportunities.status", cmd.Flags().Lookup("status"))
	_ = viper.BindPFlag("opportunities.source", cmd.Flags().Lookup("source"))
	_ = viper.BindPFlag("opportunities.difficulty", cmd.Flags().Lookup("difficulty"))
	_ = viper.BindPFlag("opportunities.min_confidence", cmd.Flags().Lookup("min-confidence"))
	_ = viper.BindPFlag("opportunities.sort", cmd.Flags().Lookup("sort"))

	return cmd
}

// resolveScanID turns the --scan flag into a concrete ID.
func resolveScanID() (string, error) {
	if id := viper.GetString("opportunities.scan"); id != "" {
		return id, nil
	}
	var latest model.TaxScan
	if err := apiRequest(http.MethodGet, "/api/scans/latest", nil, &latest); err != nil {
		return "", fmt.Errorf("no scan found; run 'bizradar scan' first: %w", err)
	}
	return latest.ID, nil
}

func runOpportunitiesList(_ *cobra.Command, _ []string) error {
	scanID, err := resolveScanID()
	if err != nil {
		return err
	}

	q := url.Values{}
	if v := viper.GetString("opportunities.status"); v != "" {
		q.Set("status", v)
	}
	if v := viper.GetString("opportunities.source"); v != "" {
		q.Set("source", v)
	}
	if v := viper.GetString("opportunities.difficulty"); v != "" {
		q.Set("difficulty", v)
	}
	if v := viper.GetInt("opportunities.min_confidence"); v > 0 {
		q.Set("minConfidence", fmt.Sprint(v))
	}
	if viper.GetString("opportunities.sort") == "confidence" {
		q.Set("sort", "confidence")
	}

	path := "/api/scans/" + url.PathEscape(scanID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var scan model.TaxScan
	if err := apiRequest(http.MethodGet, path, nil, &scan); err != nil {
		return err
	}

	if len(scan.Opportunities) == 0 {
		fmt.Println(cli.FormatInfo("No opportunities match"))
		return nil
	}
	printScan(&scan)
	return nil
}

func opportunitiesStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <opportunity-id> <status>",
		Short: "Transition an opportunity's status",
		Long: `Move an opportunity through its life cycle:
identified -> reviewing -> filed -> received, or dismiss it.`,
		Args: cobra.ExactArgs(2),
		RunE: runOpportunitiesStatus,
	}

	cmd.Flags().String("scan", "", "Scan ID (default: latest)")
	_ = viper.BindPFlag("opportunities.scan", cmd.Flags().Lookup("scan"))

	return cmd
}

func runOpportunitiesStatus(_ *cobra.Command, args []string) error {
	scanID, err := resolveScanID()
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/api/scans/%s/opportunities/%s/status",
		url.PathEscape(scanID), url.PathEscape(args[0]))
	var opp model.Opportunity
	if err := apiRequest(http.MethodPut, path, map[string]string{"status": args[1]}, &opp); err != nil {
		return err
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("%s is now %s", opp.Title, opp.Status)))
	return nil
}
