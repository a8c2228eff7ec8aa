package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yeonjae-dev/bizradar/internal/cli"
	"github.com/yeonjae-dev/bizradar/internal/model"
)

func worksheetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worksheet",
		Short: "Work with refund calculation worksheets",
	}

	cmd.PersistentFlags().String("scan", "", "Scan ID (default: latest)")
	_ = viper.BindPFlag("opportunities.scan", cmd.PersistentFlags().Lookup("scan"))

	cmd.AddCommand(worksheetGenerateCmd())
	cmd.AddCommand(worksheetShowCmd())
	cmd.AddCommand(worksheetSetCmd())
	return cmd
}

func worksheetGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <opportunity-id>",
		Short: "Generate the worksheet for an opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			scanID, err := resolveScanID()
			if err != nil {
				return err
			}

			path := fmt.Sprintf("/api/scans/%s/opportunities/%s/worksheet",
				url.PathEscape(scanID), url.PathEscape(args[0]))
			var opp model.Opportunity
			if err := apiRequest(http.MethodPost, path, nil, &opp); err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess("Worksheet generated"))
			printWorksheet(&opp)
			return nil
		},
	}
}

func worksheetShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <opportunity-id>",
		Short: "Show an opportunity's worksheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			scanID, err := resolveScanID()
			if err != nil {
				return err
			}

			var scan model.TaxScan
			if err := apiRequest(http.MethodGet, "/api/scans/"+url.PathEscape(scanID), nil, &scan); err != nil {
				return err
			}
			opp, ok := scan.Opportunity(args[0])
			if !ok {
				return fmt.Errorf("opportunity %s not found in scan %s", args[0], scanID)
			}
			if opp.Worksheet == nil {
				return fmt.Errorf("opportunity has no worksheet; run 'bizradar worksheet generate %s'", args[0])
			}

			printWorksheet(opp)
			return nil
		},
	}
}

func worksheetSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <opportunity-id> <key>=<value> [<key>=<value>...]",
		Short: "Override editable worksheet line items",
		Long: `Replace the values of editable line items. All overrides in one call
apply atomically; the worksheet's subtotals and total are recomputed.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			scanID, err := resolveScanID()
			if err != nil {
				return err
			}

			overrides := make(map[string]int64, len(args)-1)
			for _, arg := range args[1:] {
				key, raw, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("override %q must be <key>=<value>", arg)
				}
				value, err := strconv.ParseInt(strings.ReplaceAll(raw, ",", ""), 10, 64)
				if err != nil {
					return fmt.Errorf("override %q: value must be an integer amount", arg)
				}
				overrides[key] = value
			}

			path := fmt.Sprintf("/api/scans/%s/opportunities/%s/worksheet",
				url.PathEscape(scanID), url.PathEscape(args[0]))
			var opp model.Opportunity
			if err := apiRequest(http.MethodPut, path, map[string]any{"overrides": overrides}, &opp); err != nil {
				return err
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Worksheet updated, new total %s", cli.FormatWon(opp.EstimatedRefund))))
			printWorksheet(&opp)
			return nil
		},
	}
}

func printWorksheet(opp *model.Opportunity) {
	ws := opp.Worksheet
	rows := make([][]string, 0, len(ws.LineItems))
	for _, li := range ws.LineItems {
		value := li.Text
		if value == "" {
			value = cli.FormatWon(li.Value)
			if li.Unit != "" {
				value = fmt.Sprintf("%d %s", li.Value, li.Unit)
			}
		}
		editable := ""
		if li.Editable {
			editable = "editable"
		}
		rows = append(rows, []string{li.Key, li.Label, value, string(li.Source), editable})
	}

	var b strings.Builder
	b.WriteString(cli.RenderTable([]string{"Key", "Label", "Value", "Source", ""}, rows))
	for _, st := range ws.Subtotals {
		b.WriteString(fmt.Sprintf("%s: %s\n", st.Label, cli.FormatWon(st.Amount)))
	}
	b.WriteString(fmt.Sprintf("\nTotal refund: %s", cli.FormatMoney(ws.TotalRefund)))
	if len(ws.Assumptions) > 0 {
		b.WriteString("\n\n" + cli.StyleSubtle("Assumptions: "+strings.Join(ws.Assumptions, "; ")))
	}

	fmt.Println(cli.RenderBox(cli.DocIcon+" "+ws.Title, b.String()))
}
