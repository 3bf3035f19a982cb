package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cierreops/cierre-cli/internal/job"
	"github.com/cierreops/cierre-cli/internal/model"
)

var processWait bool

var processCmd = &cobra.Command{
	Use:   "process <document-type>",
	Short: "Trigger final processing for a classified job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("client"); err != nil {
			return err
		}
		ctx := cmd.Context()

		j, st, err := loadTrackedJob(ctx, args[0])
		if err != nil {
			return err
		}
		defer st.Close()

		api := newAPIClient()
		tracker := newTracker(api, st, job.TypeConfig{
			DocumentType: j.DocumentType,
			OnRecords: func(_ context.Context, records []model.Record) {
				fmt.Printf("processing finished, %d accounts reloaded\n", len(records))
			},
		})
		tracker.Track(j)

		if err := tracker.Process(ctx); err != nil {
			return err
		}
		fmt.Printf("processing requested for job %s\n", j.ID)

		audit := newActivityLogger(api, st)
		audit.Record(ctx, "procesamiento", "iniciar", "procesamiento final solicitado", "", j.ID)

		if !processWait {
			tracker.Stop()
			return nil
		}
		if done := tracker.Done(); done != nil {
			select {
			case <-done:
			case <-ctx.Done():
				tracker.Stop()
				return ctx.Err()
			}
		}
		if final := tracker.Job(); final != nil {
			printJob(final)
		}
		return nil
	},
}

func init() {
	processCmd.Flags().BoolVar(&processWait, "wait", true, "follow processing until it settles")
	rootCmd.AddCommand(processCmd)
}
