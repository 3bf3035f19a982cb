package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/cierreops/cierre-cli/internal/activity"
	"github.com/cierreops/cierre-cli/internal/job"
	"github.com/cierreops/cierre-cli/internal/model"
	"github.com/cierreops/cierre-cli/internal/store"
	"github.com/cierreops/cierre-cli/pkg/cierre"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		path := cfg.Store.Path
		if path == "" {
			path = "cierre.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func newAPIClient() cierre.Client {
	return cierre.NewClient(
		cfg.API.BaseURL,
		cierre.StaticToken(cfg.API.Token),
		cierre.WithRateLimit(cfg.API.RateLimit),
	)
}

func newActivityLogger(api cierre.Client, st store.Store) *activity.Logger {
	return activity.NewLogger(api, st, cfg.API.ClientID)
}

func newTracker(api cierre.Client, st store.Store, tc job.TypeConfig) *job.Tracker {
	tc.PollInterval = cfg.Poll.Interval()
	tc.FinalDelay = cfg.Poll.FinalDelay()
	return job.NewTracker(api, st, cfg.API.ClientID, tc)
}

// loadTrackedJob opens the store and returns the cached job for a document
// type given on the command line. The caller closes the returned store.
func loadTrackedJob(ctx context.Context, rawType string) (*model.Job, store.Store, error) {
	docType, ok := model.ParseDocumentType(rawType)
	if !ok {
		return nil, nil, eris.Errorf("unknown document type: %s", rawType)
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, nil, err
	}

	j, err := st.GetJob(ctx, docType)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if j == nil {
		st.Close()
		return nil, nil, eris.Errorf("no tracked job for document type %s", docType)
	}
	return j, st, nil
}
