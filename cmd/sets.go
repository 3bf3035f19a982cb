package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var setsWithOptions bool

var setsCmd = &cobra.Command{
	Use:   "sets",
	Short: "List the client's classification sets",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("client"); err != nil {
			return err
		}
		ctx := cmd.Context()

		api := newAPIClient()
		sets, err := api.ListSets(ctx, cfg.API.ClientID)
		if err != nil {
			return err
		}

		for _, set := range sets {
			fmt.Printf("%-24s %s\n", set.ID, set.Name)
			if !setsWithOptions {
				continue
			}
			options := set.Options
			if len(options) == 0 {
				fetched, err := api.ListOptions(ctx, set.ID)
				if err != nil {
					return err
				}
				options = fetched
			}
			for _, opt := range options {
				fmt.Printf("    %-20s %s\n", opt.Value, opt.Description)
			}
		}
		return nil
	},
}

func init() {
	setsCmd.Flags().BoolVar(&setsWithOptions, "options", false, "include each set's options")
	rootCmd.AddCommand(setsCmd)
}
