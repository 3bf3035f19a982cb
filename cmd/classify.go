package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cierreops/cierre-cli/internal/classify"
	"github.com/cierreops/cierre-cli/internal/model"
)

var (
	classifyCodesFile string
	classifySet       string
	classifyOption    string
	classifyAll       bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify ledger accounts in bulk",
}

var classifyMatchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match pasted account identifiers without applying anything",
	Long:  "Reads newline-separated identifiers from stdin (or --codes) and reports which accounts they resolve to and which lines matched nothing.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("client"); err != nil {
			return err
		}
		ctx := cmd.Context()

		api := newAPIClient()
		records, err := api.ListRecords(ctx, cfg.API.ClientID)
		if err != nil {
			return err
		}
		visible, err := filteredRecords(records)
		if err != nil {
			return err
		}

		input, err := readPaste(cmd.InOrStdin())
		if err != nil {
			return err
		}

		bulk := classify.NewBulk()
		result := bulk.MatchPaste(input, visible)

		for _, code := range result.Matched {
			fmt.Printf("matched   %s\n", code)
		}
		for _, line := range result.Unmatched {
			fmt.Printf("unmatched %s\n", line)
		}
		fmt.Printf("%d matched, %d unmatched\n", len(result.Matched), len(result.Unmatched))
		return nil
	},
}

var classifyApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply one classification option to the selected accounts",
	Long: `Selection comes from pasted identifiers on stdin (or --codes), or
--all for every account the filter flags keep. Each account is updated
individually; a failure never aborts the rest, and the summary reports
every failed account.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("client"); err != nil {
			return err
		}
		if classifySet == "" || classifyOption == "" {
			return eris.New("--set and --option are required")
		}
		ctx := cmd.Context()

		api := newAPIClient()
		records, err := api.ListRecords(ctx, cfg.API.ClientID)
		if err != nil {
			return err
		}
		visible, err := filteredRecords(records)
		if err != nil {
			return err
		}

		bulk := classify.NewBulk()
		if classifyAll {
			bulk.SelectAll(visible)
		} else {
			input, err := readPaste(cmd.InOrStdin())
			if err != nil {
				return err
			}
			result := bulk.MatchPaste(input, visible)
			for _, line := range result.Unmatched {
				fmt.Printf("unmatched %s\n", line)
			}
		}
		if bulk.Count() == 0 {
			return eris.New("nothing selected")
		}

		summary := bulk.Apply(ctx, api, classify.ApplyRequest{
			Set:     classifySet,
			Option:  classifyOption,
			Records: records,
		})

		for _, e := range summary.Errors {
			fmt.Printf("failed    %s: %s\n", e.AccountCode, e.Message)
		}
		fmt.Printf("%d updated, %d failed\n", summary.Succeeded, summary.Failed)

		st, err := initStore(ctx)
		if err == nil {
			defer st.Close()
			if err := st.Migrate(ctx); err == nil {
				audit := newActivityLogger(api, st)
				audit.Record(ctx, "clasificacion", "asignar",
					fmt.Sprintf("%s=%s aplicado a %d cuentas", classifySet, classifyOption, summary.Succeeded),
					"", "")
			}
		}

		if !summary.FullSuccess() {
			return eris.Errorf("%d accounts failed to update", summary.Failed)
		}
		return nil
	},
}

// filteredRecords applies the shared records filter flags to the full
// collection, so classify selection works over the same view as listing.
func filteredRecords(records []model.Record) ([]model.Record, error) {
	filter, err := buildFilter()
	if err != nil {
		return nil, err
	}
	return classify.Apply(records, filter), nil
}

func readPaste(stdin io.Reader) (string, error) {
	if classifyCodesFile != "" {
		raw, err := os.ReadFile(classifyCodesFile)
		if err != nil {
			return "", eris.Wrapf(err, "read %s", classifyCodesFile)
		}
		return string(raw), nil
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return "", eris.Wrap(err, "read stdin")
	}
	return string(raw), nil
}

func init() {
	for _, c := range []*cobra.Command{classifyMatchCmd, classifyApplyCmd} {
		c.Flags().StringVar(&classifyCodesFile, "codes", "", "file of newline-separated account identifiers (default stdin)")
		c.Flags().StringVar(&recordsText, "text", "", "substring filter on code or name")
		c.Flags().StringSliceVar(&recordsSets, "set-filter", nil, "keep accounts classified in any of these sets")
		c.Flags().BoolVar(&recordsUnclassified, "unclassified", false, "only accounts with no classification at all")
		c.Flags().StringVar(&recordsMissingIn, "missing-in", "", "only accounts with no value in this set")
	}
	classifyApplyCmd.Flags().StringVar(&classifySet, "set", "", "classification set to write")
	classifyApplyCmd.Flags().StringVar(&classifyOption, "option", "", "option value to assign")
	classifyApplyCmd.Flags().BoolVar(&classifyAll, "all", false, "select every account the filter keeps")

	classifyCmd.AddCommand(classifyMatchCmd)
	classifyCmd.AddCommand(classifyApplyCmd)
	rootCmd.AddCommand(classifyCmd)
}
