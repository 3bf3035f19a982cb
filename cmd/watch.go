package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cierreops/cierre-cli/internal/job"
	"github.com/cierreops/cierre-cli/internal/model"
)

var watchTypes []string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Resume polling every in-flight job until it settles",
	Long:  "Restores the cached job for each document type and follows it to a terminal state. One poll loop per document type, independent of the others.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("client"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		wanted, err := watchedTypes()
		if err != nil {
			return err
		}

		jobs, err := st.ListJobs(ctx)
		if err != nil {
			return err
		}

		api := newAPIClient()
		audit := newActivityLogger(api, st)
		g, ctx := errgroup.WithContext(ctx)
		started := 0
		for i := range jobs {
			j := jobs[i]
			if _, ok := wanted[j.DocumentType]; !ok {
				continue
			}
			if j.State.Terminal() {
				printJob(&j)
				continue
			}

			tc := job.TypeConfig{
				DocumentType: j.DocumentType,
				OnHeaders: func(_ context.Context, sets *model.HeaderSets) {
					fmt.Printf("[%s] headers analyzed: %d need mapping\n",
						j.DocumentType, len(sets.Unclassified))
				},
			}
			tracker := newTracker(api, st, tc)
			tracker.Resume(ctx, &j)
			started++

			g.Go(func() error {
				done := tracker.Done()
				if done == nil {
					return nil
				}
				select {
				case <-done:
				case <-ctx.Done():
					tracker.Stop()
					return ctx.Err()
				}
				if final := tracker.Job(); final != nil {
					printJob(final)
					if final.State.Terminal() {
						audit.Go("procesamiento", "finalizar",
							"trabajo llegó a estado terminal", string(final.State), final.ID)
					}
				}
				if tracker.Halted() {
					zap.L().Warn("polling halted",
						zap.String("document_type", string(j.DocumentType)))
				}
				return nil
			})
		}

		if started == 0 {
			fmt.Println("nothing to watch")
			return nil
		}
		return g.Wait()
	},
}

// watchedTypes resolves --type flags to a set, defaulting to all types.
func watchedTypes() (map[model.DocumentType]struct{}, error) {
	wanted := make(map[model.DocumentType]struct{})
	if len(watchTypes) == 0 {
		for _, dt := range model.AllDocumentTypes {
			wanted[dt] = struct{}{}
		}
		return wanted, nil
	}
	for _, raw := range watchTypes {
		dt, ok := model.ParseDocumentType(raw)
		if !ok {
			return nil, eris.Errorf("unknown document type: %s", raw)
		}
		wanted[dt] = struct{}{}
	}
	return wanted, nil
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchTypes, "type", nil, "document types to watch (default all)")
	rootCmd.AddCommand(watchCmd)
}
