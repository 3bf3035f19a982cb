package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cierreops/cierre-cli/internal/job"
	"github.com/cierreops/cierre-cli/internal/model"
	"github.com/cierreops/cierre-cli/internal/upload"
)

var uploadNoWait bool

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a spreadsheet and follow its processing",
	Long:  "The document type is inferred from the filename (PERIOD_TYPE_TAXID.xlsx). The file is validated locally before any network call.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("client"); err != nil {
			return err
		}
		ctx := cmd.Context()
		path := args[0]

		info, err := upload.ParseFilename(filepath.Base(path))
		if err != nil {
			return err
		}
		if cfg.API.TaxID != "" && !strings.EqualFold(info.TaxID, cfg.API.TaxID) {
			return eris.Errorf("file is for tax id %s, configured client is %s", info.TaxID, cfg.API.TaxID)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		api := newAPIClient()
		audit := newActivityLogger(api, st)

		tc := job.TypeConfig{
			DocumentType: info.DocumentType,
			OnHeaders: func(_ context.Context, sets *model.HeaderSets) {
				fmt.Printf("headers analyzed: %d classified, %d need mapping\n",
					len(sets.Classified), len(sets.Unclassified))
			},
		}
		tracker := newTracker(api, st, tc)

		j, err := tracker.Upload(ctx, path)
		if err != nil {
			return err
		}
		fmt.Printf("uploaded %s (job %s, state %s)\n", j.FileLabel, j.ID, j.State)
		audit.Record(ctx, "archivos", "subir", "archivo subido", j.FileLabel, j.ID)

		if uploadNoWait {
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

		final := tracker.Job()
		if final == nil {
			return nil
		}
		printJob(final)
		if tracker.Halted() {
			zap.L().Warn("polling halted after repeated fetch failures; run 'cierre-cli watch' to resume")
		}
		return nil
	},
}

func printJob(j *model.Job) {
	fmt.Printf("%-16s %-18s %s", j.DocumentType, j.State, j.FileLabel)
	if j.ErrorDetail != "" {
		fmt.Printf("  error: %s", j.ErrorDetail)
	}
	for k, v := range j.Counts {
		fmt.Printf("  %s=%d", k, v)
	}
	fmt.Println()
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadNoWait, "no-wait", false, "return after the upload is accepted instead of following processing")
	rootCmd.AddCommand(uploadCmd)
}
