package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cierreops/cierre-cli/internal/model"
)

var statusRefresh bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cached state of every tracked job",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		jobs, err := st.ListJobs(ctx)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("no tracked jobs")
			return nil
		}

		if statusRefresh {
			if err := cfg.Validate("client"); err != nil {
				return err
			}
			api := newAPIClient()
			for i := range jobs {
				status, err := api.GetJobStatus(ctx, jobs[i].ID)
				if err != nil {
					fmt.Printf("%-16s (refresh failed: %v)\n", jobs[i].DocumentType, err)
					continue
				}
				jobs[i].State = status.State
				jobs[i].ErrorDetail = status.ErrorDetail
				if status.Counts != nil {
					jobs[i].Counts = status.Counts
				}
				if err := st.SaveJob(ctx, &jobs[i]); err != nil {
					return err
				}
			}
		}

		for i := range jobs {
			printJob(&jobs[i])
		}
		summarize(jobs)
		return nil
	},
}

func summarize(jobs []model.Job) {
	var terminal, failed int
	for _, j := range jobs {
		if j.State.Terminal() {
			terminal++
		}
		if j.State == model.JobStateFailed {
			failed++
		}
	}
	fmt.Printf("%d tracked, %d finished, %d failed\n", len(jobs), terminal, failed)
}

func init() {
	statusCmd.Flags().BoolVar(&statusRefresh, "refresh", false, "fetch current server state instead of the cached snapshot")
	rootCmd.AddCommand(statusCmd)
}
