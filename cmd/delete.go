package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cierreops/cierre-cli/internal/job"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <document-type>",
	Short: "Delete a tracked job server-side and locally",
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
		tracker := newTracker(api, st, job.TypeConfig{DocumentType: j.DocumentType})
		tracker.Track(j)

		if err := tracker.Delete(ctx); err != nil {
			return err
		}
		fmt.Printf("job %s deleted\n", j.ID)

		audit := newActivityLogger(api, st)
		audit.Record(ctx, "archivos", "eliminar", "archivo eliminado", j.FileLabel, j.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
