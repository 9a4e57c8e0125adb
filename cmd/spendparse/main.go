// Command spendparse extracts spend records from a report offline, without a
// running server or store.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AngelCh415/spend-dashboard/internal/ingest"
	"github.com/AngelCh415/spend-dashboard/internal/models"
)

type parseOpts struct {
	text     bool
	jsonOut  bool
	currency string
}

func newRootCmd(out io.Writer) *cobra.Command {
	var o parseOpts
	cmd := &cobra.Command{
		Use:   "spendparse [file...]",
		Short: "Parse campaign spend records from PDF or text reports",
		Long: `Reads each report, extracts its text (PDF unless --text or a .txt file),
and prints the campaign/date/amount records with the report total.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(out, args, o)
		},
	}
	cmd.Flags().BoolVar(&o.text, "text", false, "treat inputs as plain text instead of PDF")
	cmd.Flags().BoolVar(&o.jsonOut, "json", false, "print records as JSON")
	cmd.Flags().StringVar(&o.currency, "currency", ingest.DefaultCurrency, "currency code stamped on records")
	return cmd
}

type fileReport struct {
	File           string               `json:"file"`
	Records        []models.SpendRecord `json:"records"`
	TotalAmount    string               `json:"total_amount"`
	TotalCampaigns int                  `json:"total_campaigns"`
}

func run(out io.Writer, files []string, o parseOpts) error {
	var reports []fileReport
	for _, f := range files {
		text, err := readText(f, o.text)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		rep := ingest.ParseSpend(text)
		for i := range rep.Records {
			rep.Records[i].Currency = o.currency
		}
		if rep.Records == nil {
			rep.Records = []models.SpendRecord{}
		}
		reports = append(reports, fileReport{
			File:           f,
			Records:        rep.Records,
			TotalAmount:    rep.TotalAmount.StringFixed(2),
			TotalCampaigns: rep.TotalCampaigns,
		})
	}

	if o.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, r := range reports {
		fmt.Fprintf(tw, "# %s\n", r.File)
		fmt.Fprintln(tw, "CAMPAIGN\tDATE\tAMOUNT")
		for _, rec := range r.Records {
			fmt.Fprintf(tw, "%s\t%s\t%s %s\n", rec.CampaignName, rec.Date.Format(models.DateLayout), rec.Amount.StringFixed(2), rec.Currency)
		}
		fmt.Fprintf(tw, "TOTAL\t%d campaigns\t%s\n\n", r.TotalCampaigns, r.TotalAmount)
	}
	return tw.Flush()
}

func readText(path string, plain bool) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if plain || strings.EqualFold(filepath.Ext(path), ".txt") {
		return string(b), nil
	}
	return ingest.ExtractPDFText(b)
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "spendparse:", err)
		os.Exit(1)
	}
}
