package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cierreops/cierre-cli/internal/classify"
)

var (
	recordsText         string
	recordsSets         []string
	recordsOptions      []string
	recordsUnclassified bool
	recordsClassified   bool
	recordsMissingIn    string
	recordsSummary      bool
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List ledger accounts, filtered by classification state",
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

		if recordsSummary {
			s := classify.Summarize(records)
			fmt.Printf("%d accounts: %d without name, %d without secondary name, %d unclassified\n",
				len(records), s.NoName, s.NoNameEN, s.Unclassified)
			return nil
		}

		filter, err := buildFilter()
		if err != nil {
			return err
		}

		matched := classify.Apply(records, filter)
		for _, r := range matched {
			var tags []string
			for _, set := range sortedKeys(r.Classifications) {
				tags = append(tags, set+"="+r.Classifications[set])
			}
			fmt.Printf("%-12s %-40s %s\n", r.AccountCode, r.Name, strings.Join(tags, " "))
		}
		fmt.Printf("%d of %d accounts\n", len(matched), len(records))
		return nil
	},
}

func buildFilter() (classify.Filter, error) {
	filter := classify.Filter{
		Text:             recordsText,
		Sets:             recordsSets,
		OnlyUnclassified: recordsUnclassified,
		OnlyClassified:   recordsClassified,
		MissingInSet:     recordsMissingIn,
	}
	if recordsUnclassified && recordsClassified {
		return classify.Filter{}, eris.New("--unclassified and --classified are mutually exclusive")
	}
	for _, pair := range recordsOptions {
		set, value, ok := strings.Cut(pair, "=")
		if !ok {
			return classify.Filter{}, eris.Errorf("invalid --option %q, want set=value", pair)
		}
		filter.Options = append(filter.Options, classify.OptionKey{Set: set, Value: value})
	}
	return filter, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	recordsCmd.Flags().StringVar(&recordsText, "text", "", "substring match on code or name (diacritic-insensitive)")
	recordsCmd.Flags().StringSliceVar(&recordsSets, "set", nil, "keep accounts classified in any of these sets")
	recordsCmd.Flags().StringArrayVar(&recordsOptions, "option", nil, "set=value option filter (repeatable, OR)")
	recordsCmd.Flags().BoolVar(&recordsUnclassified, "unclassified", false, "only accounts with no classification at all")
	recordsCmd.Flags().BoolVar(&recordsClassified, "classified", false, "only accounts with at least one classification")
	recordsCmd.Flags().StringVar(&recordsMissingIn, "missing-in", "", "only accounts with no value in this set")
	recordsCmd.Flags().BoolVar(&recordsSummary, "summary", false, "print collection health counters instead of rows")
	rootCmd.AddCommand(recordsCmd)
}
