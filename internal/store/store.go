// Package store persists the client-side mirror of upload jobs and the
// local fallback activity log. One job row per document type; the server
// stays authoritative, this cache only survives restarts.
package store

import (
	"context"

	"github.com/cierreops/cierre-cli/internal/model"
)

// ActivityFilter specifies criteria for listing locally logged activity.
type ActivityFilter struct {
	Category string `json:"category,omitempty"`
	CierreID string `json:"cierre_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for job snapshots and activity.
type Store interface {
	// Jobs, keyed by document type (one tracked job per type).
	SaveJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, docType model.DocumentType) (*model.Job, error)
	ListJobs(ctx context.Context) ([]model.Job, error)
	DeleteJob(ctx context.Context, docType model.DocumentType) error

	// Activity fallback log, appended when the remote audit call fails.
	AppendActivity(ctx context.Context, entry model.ActivityEntry) error
	ListActivity(ctx context.Context, filter ActivityFilter) ([]model.ActivityEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
